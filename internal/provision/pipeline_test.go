package provision

import (
	"strings"
	"testing"
)

func TestPlanStepsOrdering(t *testing.T) {
	fw, ok := LookupFramework("next")
	if !ok {
		t.Fatal("next framework missing")
	}
	steps := PlanSteps("https://example.com/repo.git", map[string]string{"API_KEY": "k"}, fw, 3000)

	var kinds []StepKind
	for _, s := range steps {
		kinds = append(kinds, s.Kind)
	}
	want := []StepKind{StepClone, StepWriteEnv, StepInstall, StepBuild, StepServe}
	if len(kinds) != len(want) {
		t.Fatalf("expected %d steps, got %v", len(want), kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("step %d = %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestPlanStepsSkipsEmptyStages(t *testing.T) {
	fw, ok := LookupFramework("node")
	if !ok {
		t.Fatal("node framework missing")
	}
	steps := PlanSteps("repo", nil, fw, 3000)
	for _, s := range steps {
		if s.Kind == StepBuild {
			t.Fatal("node framework has no build stage, but one was planned")
		}
	}
}

func TestRenderScriptMarkersAndPort(t *testing.T) {
	fw, _ := LookupFramework("node")
	script := RenderScript(PlanSteps("https://example.com/repo.git", map[string]string{"A": "1"}, fw, 3000))

	if !strings.HasPrefix(script, "set -e\n") {
		t.Fatal("script must abort on first failure")
	}
	for _, marker := range []string{
		"deploify: step clone started",
		"deploify: step write-env complete",
		"deploify: step serve started",
	} {
		if !strings.Contains(script, marker) {
			t.Fatalf("script missing marker %q:\n%s", marker, script)
		}
	}
	if !strings.Contains(script, "PORT=3000 npm run start") {
		t.Fatalf("serve command not bound to app port:\n%s", script)
	}
	if !strings.Contains(script, "'A=1'") {
		t.Fatalf("env var not written to .env:\n%s", script)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	quoted := shellQuote("it's")
	if quoted != `'it'\''s'` {
		t.Fatalf("unexpected quoting: %s", quoted)
	}
}

func TestLookupFrameworkCaseInsensitive(t *testing.T) {
	if _, ok := LookupFramework(" React "); !ok {
		t.Fatal("expected react lookup to succeed")
	}
	if _, ok := LookupFramework("rails"); ok {
		t.Fatal("expected unknown framework lookup to fail")
	}
}
