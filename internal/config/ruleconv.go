package config

import (
	"regexp"

	"github.com/bdobrica/cmdgate/internal/rules"
)

// CompileCustomPatterns turns the YAML-decoded rules.customPatterns[] entries
// into compiled rules.Pattern values, skipping any entry whose pattern does
// not compile (the rule engine already treats a nil Regexp as "skip", so an
// invalid operator-supplied pattern never causes a panic or a false
// positive).
func CompileCustomPatterns(specs []PatternSpec) []rules.Pattern {
	out := make([]rules.Pattern, 0, len(specs))
	for _, spec := range specs {
		re, err := regexp.Compile(spec.Pattern)
		if err != nil {
			continue
		}
		out = append(out, rules.Pattern{
			Regexp:   re,
			Severity: rules.Severity(spec.Severity),
			Reason:   spec.Reason,
		})
	}
	return out
}
