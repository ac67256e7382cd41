package dataset

import (
	"math"

	"zombiezen.com/go/sqlite"
)

// ceilEpsilon absorbs binary floating point noise such as 10*1.1 = 11.000000000000002
const ceilEpsilon = 1e-9

// registerFunctions adds the scalar functions the analytical templates rely on
func registerFunctions(conn *sqlite.Conn) error {
	return conn.CreateFunction("ceil", &sqlite.FunctionImpl{
		NArgs:         1,
		Deterministic: true,
		Scalar: func(ctx sqlite.Context, args []sqlite.Value) (sqlite.Value, error) {
			arg := args[0]
			switch arg.Type() {
			case sqlite.TypeNull:
				return sqlite.Value{}, nil
			case sqlite.TypeInteger:
				return sqlite.IntegerValue(arg.Int64()), nil
			default:
				return sqlite.IntegerValue(int64(math.Ceil(arg.Float() - ceilEpsilon))), nil
			}
		},
	})
}
