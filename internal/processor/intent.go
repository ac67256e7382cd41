package processor

import (
	"regexp"
	"strings"
)

// Intent is one of the fixed analytical question categories
type Intent string

const (
	IntentHiringRecommendation     Intent = "HiringRecommendationForDepartment"
	IntentAgeServiceWithDepartment Intent = "AgeServiceBreakdownWithDepartment"
	IntentDepartmentAttrition      Intent = "DepartmentAttritionRate"
	IntentAnnualAttrition          Intent = "AnnualAttritionRate"
	IntentAgeServiceDefault        Intent = "AgeServiceBreakdownDefault"
	IntentMonthlyTrend             Intent = "MonthlyAttritionTrend"
	IntentListRows                 Intent = "ListRows"
)

// Slot names an entity a rule needs before it may fire
type Slot string

const (
	SlotDepartment  Slot = "department"
	SlotServiceCode Slot = "service_code"
	SlotYear        Slot = "year"
)

var (
	hiringPattern    = regexp.MustCompile(`нанима|наня|найм|нанят|набира|набрать|\bhir(?:e|es|ed|ing)\b|recruit`)
	attritionPattern = regexp.MustCompile(`текуч|увольн|уволи|отток|attrition|turnover|churn|terminat|\bleavers?\b`)
	yearWordPattern  = regexp.MustCompile(`(?:^|[^а-яё])(?:год|ежегод)|\byears?\b|\bannual|\byearly\b`)
	agePattern       = regexp.MustCompile(`возраст|категор|\bages?\b|\bcategor`)
	servicePattern   = regexp.MustCompile(`сервис|стаж|уровн|уровен|\bservice\b|\btenure\b|\bseniority\b|\blevels?\b`)
)

// Signals records which keyword groups a question mentions
type Signals struct {
	Hiring     bool `json:"hiring,omitempty"`
	Attrition  bool `json:"attrition,omitempty"`
	Year       bool `json:"year,omitempty"`
	Age        bool `json:"age,omitempty"`
	Service    bool `json:"service,omitempty"`
	Department bool `json:"department,omitempty"`
}

// Rule is one row of the ranked classification table
type Rule struct {
	Name      string             `json:"name"`
	Intent    Intent             `json:"intent"`
	Predicate func(Signals) bool `json:"-"`
	Requires  []Slot             `json:"requires,omitempty"`
}

// rules is evaluated top to bottom. The last rule always matches.
var rules = []Rule{
	{
		Name:      "hiring+department",
		Intent:    IntentHiringRecommendation,
		Predicate: func(s Signals) bool { return s.Hiring && s.Department },
		Requires:  []Slot{SlotDepartment},
	},
	{
		Name:      "age+service+department",
		Intent:    IntentAgeServiceWithDepartment,
		Predicate: func(s Signals) bool { return s.Age && s.Service && s.Department },
		Requires:  []Slot{SlotDepartment},
	},
	{
		Name:      "attrition+department",
		Intent:    IntentDepartmentAttrition,
		Predicate: func(s Signals) bool { return s.Attrition && s.Department },
		Requires:  []Slot{SlotDepartment},
	},
	{
		Name:      "attrition+year",
		Intent:    IntentAnnualAttrition,
		Predicate: func(s Signals) bool { return s.Attrition && s.Year },
	},
	{
		Name:      "age+service",
		Intent:    IntentAgeServiceDefault,
		Predicate: func(s Signals) bool { return s.Age && s.Service },
	},
	{
		Name:      "attrition",
		Intent:    IntentMonthlyTrend,
		Predicate: func(s Signals) bool { return s.Attrition },
	},
	{
		Name:      "default",
		Intent:    IntentListRows,
		Predicate: func(Signals) bool { return true },
	},
}

// Rules returns a copy of the ranked rule table
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// Classification is the outcome of classifying one question
type Classification struct {
	Intent   Intent   `json:"intent"`
	Rule     string   `json:"rule"`
	Entities Entities `json:"entities"`
	Signals  Signals  `json:"signals"`
}

// IntentClassifier classifies natural language questions
type IntentClassifier struct {
	extractor *EntityExtractor
	rules     []Rule
}

// NewIntentClassifier creates a new intent classifier
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		extractor: NewEntityExtractor(),
		rules:     rules,
	}
}

// Classify picks the first rule whose predicate matches and whose required
// slots are resolved. It always returns exactly one intent.
func (ic *IntentClassifier) Classify(question string) Classification {
	entities := ic.extractor.Extract(question)
	signals := ic.signals(question, entities)

	for _, rule := range ic.rules {
		if !rule.Predicate(signals) {
			continue
		}
		if !slotsResolved(rule.Requires, entities) {
			continue
		}
		return Classification{
			Intent:   rule.Intent,
			Rule:     rule.Name,
			Entities: entities,
			Signals:  signals,
		}
	}

	// The last rule is the catch-all even if its predicate was edited to reject
	last := ic.rules[len(ic.rules)-1]
	return Classification{Intent: last.Intent, Rule: last.Name, Entities: entities, Signals: signals}
}

// signals detects keyword groups in the question
func (ic *IntentClassifier) signals(question string, entities Entities) Signals {
	lower := strings.ToLower(question)
	return Signals{
		Hiring:     hiringPattern.MatchString(lower),
		Attrition:  attritionPattern.MatchString(lower),
		Year:       yearWordPattern.MatchString(lower) || entities.Year != nil,
		Age:        agePattern.MatchString(lower),
		Service:    servicePattern.MatchString(lower),
		Department: ic.extractor.HasDepartmentKeyword(question),
	}
}

func slotsResolved(required []Slot, entities Entities) bool {
	for _, slot := range required {
		switch slot {
		case SlotDepartment:
			if entities.Department == nil {
				return false
			}
		case SlotServiceCode:
			if entities.ServiceCode == nil {
				return false
			}
		case SlotYear:
			if entities.Year == nil {
				return false
			}
		}
	}
	return true
}
