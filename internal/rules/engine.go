// Package rules implements the command classifier: a pure function that
// decides whether a raw shell command string is safe to run or dangerous
// enough to require human approval.
//
// Classification is deterministic and side-effect free so it can be
// unit-tested without a store, a notifier, or a TTY.
package rules

import "regexp"

// Severity ranks how dangerous a matched command is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Pattern is a single classification rule: a compiled regexp plus the
// severity and human-readable reason to report when it matches.
type Pattern struct {
	Regexp   *regexp.Regexp
	Severity Severity
	Reason   string
}

// Verdict is the result of classifying one command string.
type Verdict struct {
	Dangerous bool
	Severity  Severity
	Reason    string
	// Pattern is the source text of the rule that matched, or "" for the
	// allowlist/no-match cases.
	Pattern string
}

// Engine classifies command strings against the built-in danger patterns,
// plus any caller-supplied whitelist and extra danger patterns.
//
// An Engine is immutable after NewEngine and is safe for concurrent use.
type Engine struct {
	whitelist []*regexp.Regexp
	custom    []Pattern
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithWhitelist adds user-supplied safe patterns. Entries matched get
// {safe, reason="whitelisted"} regardless of custom/built-in danger
// patterns. Invalid regexps are silently skipped — a malformed whitelist
// entry must never cause a false positive (a command wrongly classified as
// dangerous), so we fail open on the compile step, not on the match.
func WithWhitelist(patterns []string) Option {
	return func(e *Engine) {
		for _, p := range patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				continue
			}
			e.whitelist = append(e.whitelist, re)
		}
	}
}

// WithCustomPatterns adds user-supplied danger patterns. These are checked
// before the built-in list, so an operator's own rule always wins over a
// built-in one for the same command. Invalid regexps are silently skipped.
func WithCustomPatterns(patterns []Pattern) Option {
	return func(e *Engine) {
		for _, p := range patterns {
			if p.Regexp == nil {
				continue
			}
			e.custom = append(e.custom, p)
		}
	}
}

// NewEngine builds an Engine from the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Classify applies the classification order: safe allowlist, then user
// whitelist, then user danger patterns, then built-in danger patterns
// (critical first), then default-safe.
//
// Classify(c) == Classify(c) for any fixed Engine and input c: every step
// is a pure regexp match over immutable state.
func (e *Engine) Classify(command string) Verdict {
	for _, p := range safeAllowlist {
		if p.MatchString(command) {
			return Verdict{Dangerous: false, Reason: "safe command"}
		}
	}

	for _, re := range e.whitelist {
		if re.MatchString(command) {
			return Verdict{Dangerous: false, Reason: "whitelisted"}
		}
	}

	for _, p := range e.custom {
		if p.Regexp.MatchString(command) {
			return Verdict{
				Dangerous: true,
				Severity:  p.Severity,
				Reason:    p.Reason,
				Pattern:   p.Regexp.String(),
			}
		}
	}

	for _, p := range builtinDangerPatterns {
		if p.Regexp.MatchString(command) {
			return Verdict{
				Dangerous: true,
				Severity:  p.Severity,
				Reason:    p.Reason,
				Pattern:   p.Regexp.String(),
			}
		}
	}

	return Verdict{Dangerous: false, Reason: "no dangerous patterns detected"}
}
