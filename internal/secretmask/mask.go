// Package secretmask implements the pure secret-redaction function applied
// to any command string before it leaves the hook process — to the chat
// notifier, to the store, or to a log line.
//
// Masking preserves surrounding context (the query string key, the header
// name, the variable name) so a human reviewer can still tell what the
// command does; only the secret value itself is replaced.
package secretmask

import (
	"regexp"
	"strings"
)

const placeholder = "[REDACTED]"

// credentialQueryParams is the allowlist of query-string keys whose values
// are masked regardless of surrounding command.
var credentialQueryParams = []string{
	"api_key", "apikey", "token", "secret", "password", "auth", "key", "access_token",
}

// credentialEnvVars is the allowlist of environment variable name fragments
// whose assignments (`NAME=value`) are masked.
var credentialEnvVars = []string{
	"TOKEN", "SECRET", "PASSWORD", "PASSWD", "API_KEY", "APIKEY", "AUTH", "CREDENTIAL", "ACCESS_KEY",
}

var (
	// Authorization: <scheme> <value> header, optionally with a Bearer/Basic/etc scheme.
	authHeaderPattern = regexp.MustCompile(`(?i)(Authorization:\s*)(Bearer|Basic|Token|Digest)?(\s*)([^\s"'&|;]+)`)

	// scheme://user:pw@host URL credentials.
	urlUserPassPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)([^/\s:@]+):([^/\s@]+)@`)

	// Basic <base64> values (separate from the generic Authorization match so
	// a bare "Basic xxxx" string outside a header line is still caught).
	basicAuthPattern = regexp.MustCompile(`(?i)\bBasic\s+([A-Za-z0-9+/]{8,}={0,2})`)
)

// envAssignPattern matches NAME=value assignments where NAME contains one of
// the credentialEnvVars fragments, case-sensitively (shell env vars are
// conventionally upper-case, and case-sensitivity avoids masking unrelated
// lower-case words that happen to contain "key" etc.).
var envAssignPattern = buildEnvAssignPattern()

func buildEnvAssignPattern() *regexp.Regexp {
	// (?:^|[\s;])([A-Z_][A-Z0-9_]*(?:TOKEN|SECRET|...)[A-Z0-9_]*)=(\S+)
	alt := strings.Join(credentialEnvVars, "|")
	return regexp.MustCompile(`(?:^|[\s;])([A-Z_][A-Z0-9_]*(?:` + alt + `)[A-Z0-9_]*)=(\S+)`)
}

func buildQueryParamPattern() *regexp.Regexp {
	alt := strings.Join(credentialQueryParams, "|")
	return regexp.MustCompile(`(?i)([?&])(` + alt + `)=([^&\s"']+)`)
}

var queryParamPattern = buildQueryParamPattern()

// Mask replaces the secret-looking portions of cmd with [REDACTED],
// preserving enough surrounding context (key names, header names, schemes)
// for a human to still understand what the command does.
//
// Mask is idempotent: Mask(Mask(s)) == Mask(s) for any s. Where a pattern
// matches an already-masked value (e.g. "api_key=[REDACTED]"), the
// substitution writes the same placeholder back, so the text is unchanged.
func Mask(cmd string) string {
	out := cmd

	out = queryParamPattern.ReplaceAllString(out, "${1}${2}="+placeholder)
	out = authHeaderPattern.ReplaceAllStringFunc(out, func(m string) string {
		groups := authHeaderPattern.FindStringSubmatch(m)
		// groups: [full, "Authorization:\s*", scheme, ws, value]
		prefix := groups[1]
		scheme := groups[2]
		if scheme != "" {
			return prefix + scheme + " " + placeholder
		}
		return prefix + placeholder
	})
	out = basicAuthPattern.ReplaceAllString(out, "Basic "+placeholder)
	out = urlUserPassPattern.ReplaceAllString(out, "${1}${2}:"+placeholder+"@")
	out = envAssignPattern.ReplaceAllString(out, "${1}="+placeholder)

	return out
}
