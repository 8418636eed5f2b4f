package regression

import (
	"fmt"
	"strings"
)

// ParseFormula parses "response ~ a + b + c" into a Spec. Whitespace is
// insignificant; terms must be plain column names.
func ParseFormula(formula string) (Spec, error) {
	lhs, rhs, ok := strings.Cut(formula, "~")
	if !ok {
		return Spec{}, fmt.Errorf("formula %q: missing '~'", formula)
	}
	response := strings.TrimSpace(lhs)
	if response == "" {
		return Spec{}, fmt.Errorf("formula %q: empty response", formula)
	}

	var predictors []string
	seen := make(map[string]bool)
	for _, term := range strings.Split(rhs, "+") {
		term = strings.TrimSpace(term)
		if term == "" {
			return Spec{}, fmt.Errorf("formula %q: empty term", formula)
		}
		if term == response {
			return Spec{}, fmt.Errorf("formula %q: response %q used as predictor", formula, term)
		}
		if seen[term] {
			continue
		}
		seen[term] = true
		predictors = append(predictors, term)
	}

	return Spec{Response: response, Predictors: predictors}, nil
}

// MustParseFormula is ParseFormula for static formulas; it panics on error.
func MustParseFormula(formula string) Spec {
	spec, err := ParseFormula(formula)
	if err != nil {
		panic(err)
	}
	return spec
}

// FormatFormula renders a Spec in formula notation.
func FormatFormula(s Spec) string {
	return s.Response + " ~ " + strings.Join(s.Predictors, " + ")
}
