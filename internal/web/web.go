// Package web serves the single-page question form
package web

import _ "embed"

//go:embed index.html
var indexHTML []byte

// IndexHTML returns the form page
func IndexHTML() []byte {
	return indexHTML
}
