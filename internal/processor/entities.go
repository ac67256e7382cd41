// internal/processor/entities.go
package processor

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Canonical department names
const (
	DepartmentHR        = "HR"
	DepartmentSales     = "Sales"
	DepartmentIT        = "IT"
	DepartmentFinance   = "Finance"
	DepartmentMarketing = "Marketing"

	// DefaultDepartment is used by the age/service breakdown when no department was named
	DefaultDepartment = DepartmentSales

	// DefaultServiceCode is used when a breakdown needs a service level and none was named
	DefaultServiceCode int64 = 1

	maxFallbackDepartmentLength = 40
)

// Department is a resolved department entity
type Department struct {
	Name string `json:"name"`
	// FreeForm is set when the name was captured from the question instead of the vocabulary
	FreeForm bool `json:"free_form,omitempty"`
}

// Year is a resolved year entity. Relative years are evaluated by the query engine.
type Year struct {
	Value    int  `json:"value,omitempty"`
	Relative bool `json:"relative,omitempty"`
	// Offset from the current year when Relative is set; -1 is last year
	Offset int `json:"offset,omitempty"`
}

// Entities holds every slot resolved from a question
type Entities struct {
	Department  *Department `json:"department,omitempty"`
	ServiceCode *int64      `json:"service_code,omitempty"`
	Year        *Year       `json:"year,omitempty"`
}

type departmentAlias struct {
	canonical string
	// lower matches against the lower-cased question
	lower *regexp.Regexp
	// exact matches against the question as typed, when set
	exact *regexp.Regexp
}

// departmentVocabulary is ordered by priority; the first hit wins.
// Go's \b is ASCII-only, so it guards the short latin aliases only.
var departmentVocabulary = []departmentAlias{
	{canonical: DepartmentHR, lower: regexp.MustCompile(`\bhr\b|кадр|эйчар|human resources`)},
	{canonical: DepartmentSales, lower: regexp.MustCompile(`\bsales\b|продаж|сейлз`)},
	{
		canonical: DepartmentIT,
		// "it" is also a pronoun: accept it lower-cased only next to a department word
		lower: regexp.MustCompile(`айти|\bit[- ](?:department|dept|отдел)|(?:отдел[а-яё]*|department|dept)\s+it\b`),
		exact: regexp.MustCompile(`\bIT\b`),
	},
	{canonical: DepartmentFinance, lower: regexp.MustCompile(`\bfinanc|финанс|бухгалтер`)},
	{canonical: DepartmentMarketing, lower: regexp.MustCompile(`\bmarketing\b|маркетинг`)},
}

var (
	departmentWordPattern = regexp.MustCompile(`отдел|подразделен|департамент|\bdepartments?\b|\bdept\b`)

	fallbackAfterPattern  = regexp.MustCompile(`отдел[а-яё]*|департамент[а-яё]*|\bdepartments?\b|\bdept\b`)
	fallbackBeforePattern = regexp.MustCompile(`([\p{L}][\p{L}-]*)\s+(?:departments?|dept)\b`)
	fallbackWordPattern   = regexp.MustCompile(`^[\p{L}][\p{L}-]*$`)

	serviceCodePattern = regexp.MustCompile(`(?:сервис|стаж|уровен|уровн|\bservice|\btenure|\bseniority|\blevel|отдел|департамент|\bdepartment|\bdept)\D{0,12}?(\d+)`)

	yearPattern        = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	lastYearPattern    = regexp.MustCompile(`прошл[а-яё]*\s+год|(?:last|previous|past)\s+year`)
	currentYearPattern = regexp.MustCompile(`(?:этот|этом|текущ[а-яё]*|нынешн[а-яё]*)\s+год|(?:this|current)\s+year`)
)

// fallbackStopWords are skipped when capturing a free-form department name
var fallbackStopWords = map[string]bool{
	"в": true, "во": true, "по": true, "за": true, "на": true, "для": true, "с": true, "и": true,
	"из": true, "у": true, "о": true, "об": true, "от": true, "к": true,
	"of": true, "the": true, "for": true, "in": true, "a": true, "an": true, "by": true,
	"each": true, "every": true, "which": true, "what": true, "this": true, "that": true,
	"my": true, "our": true, "per": true, "and": true, "or": true, "is": true, "to": true,
}

// EntityExtractor resolves department, service code and year slots from a question
type EntityExtractor struct{}

// NewEntityExtractor creates a new entity extractor
func NewEntityExtractor() *EntityExtractor {
	return &EntityExtractor{}
}

// Extract resolves every slot it can find in the question
func (ee *EntityExtractor) Extract(question string) Entities {
	var entities Entities

	if dept, ok := ee.ExtractDepartment(question); ok {
		entities.Department = &dept
	}
	if code, ok := ee.ExtractServiceCode(question); ok {
		entities.ServiceCode = &code
	}
	if year, ok := ee.ExtractYear(question); ok {
		entities.Year = &year
	}

	return entities
}

// ExtractDepartment resolves a department from the vocabulary, falling back to
// the word next to a department keyword
func (ee *EntityExtractor) ExtractDepartment(question string) (Department, bool) {
	lower := strings.ToLower(question)

	for _, alias := range departmentVocabulary {
		if alias.lower.MatchString(lower) || (alias.exact != nil && alias.exact.MatchString(question)) {
			return Department{Name: alias.canonical}, true
		}
	}

	if name, ok := fallbackDepartment(lower); ok {
		return Department{Name: name, FreeForm: true}, true
	}

	return Department{}, false
}

// HasDepartmentKeyword reports whether the question names a department at all
func (ee *EntityExtractor) HasDepartmentKeyword(question string) bool {
	lower := strings.ToLower(question)
	if departmentWordPattern.MatchString(lower) {
		return true
	}
	for _, alias := range departmentVocabulary {
		if alias.lower.MatchString(lower) || (alias.exact != nil && alias.exact.MatchString(question)) {
			return true
		}
	}
	return false
}

// ExtractServiceCode finds the first number next to a service level or department keyword
func (ee *EntityExtractor) ExtractServiceCode(question string) (int64, bool) {
	lower := strings.ToLower(question)

	for _, match := range serviceCodePattern.FindAllStringSubmatch(lower, -1) {
		// A year is never a service level
		if yearPattern.MatchString(match[1]) {
			continue
		}
		code, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			continue
		}
		return code, true
	}

	return 0, false
}

// ExtractYear finds an explicit year or a relative year phrase
func (ee *EntityExtractor) ExtractYear(question string) (Year, bool) {
	lower := strings.ToLower(question)

	if match := yearPattern.FindStringSubmatch(lower); match != nil {
		value, err := strconv.Atoi(match[1])
		if err == nil {
			return Year{Value: value}, true
		}
	}

	if lastYearPattern.MatchString(lower) {
		return Year{Relative: true, Offset: -1}, true
	}
	if currentYearPattern.MatchString(lower) {
		return Year{Relative: true, Offset: 0}, true
	}

	return Year{}, false
}

func fallbackDepartment(lower string) (string, bool) {
	for _, loc := range fallbackAfterPattern.FindAllStringIndex(lower, -1) {
		for _, word := range strings.Fields(lower[loc[1]:]) {
			word = strings.Trim(word, `.,:;!?"'()«»`)
			if fallbackStopWords[word] {
				continue
			}
			if !fallbackWordPattern.MatchString(word) || isKeyword(word) {
				break
			}
			return titleCase(word)
		}
	}

	for _, match := range fallbackBeforePattern.FindAllStringSubmatch(lower, -1) {
		word := match[1]
		if fallbackStopWords[word] || isKeyword(word) {
			continue
		}
		return titleCase(word)
	}

	return "", false
}

// isKeyword reports whether a captured word is itself an intent keyword
func isKeyword(word string) bool {
	for _, pattern := range []*regexp.Regexp{hiringPattern, attritionPattern, agePattern, servicePattern, yearWordPattern, departmentWordPattern} {
		if pattern.MatchString(word) {
			return true
		}
	}
	return false
}

// titleCase upper-cases the first letter of every hyphen-separated part
func titleCase(word string) (string, bool) {
	word = strings.Trim(word, "-")
	if word == "" || !fallbackWordPattern.MatchString(word) || utf8.RuneCountInString(word) > maxFallbackDepartmentLength {
		return "", false
	}

	parts := strings.Split(word, "-")
	for i, part := range parts {
		if part == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(part)
		parts[i] = string(unicode.ToUpper(r)) + part[size:]
	}
	return strings.Join(parts, "-"), true
}
