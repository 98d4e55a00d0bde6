package rules

import (
	"errors"
	"testing"

	"github.com/aristath/seqflow/internal/config"
)

func simpleRule(name string) *RuleTemplate {
	return &RuleTemplate{
		Name:    name,
		Outputs: Templates{name + "/{sample}.out"},
		Command: Argv("touch", "{o}"),
	}
}

func TestCatalogRegister(t *testing.T) {
	cat := NewCatalog(map[string]ToolBinding{"samtools": {Command: "samtools"}})

	for _, name := range []string{"b", "a", "c"} {
		if err := cat.Register(simpleRule(name)); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	var names []string
	for _, r := range cat.Rules() {
		names = append(names, r.Name)
	}
	if got, want := len(names), 3; got != want {
		t.Fatalf("Rules() returned %d templates, want %d", got, want)
	}
	if names[0] != "b" || names[1] != "a" || names[2] != "c" {
		t.Errorf("Rules() order = %v, want registration order [b a c]", names)
	}

	if tb, ok := cat.Tool("samtools"); !ok || tb.Name != "samtools" {
		t.Errorf("Tool(samtools) = %+v, %v", tb, ok)
	}
}

func TestCatalogRegister_Duplicate(t *testing.T) {
	cat := NewCatalog(nil)
	if err := cat.Register(simpleRule("trim")); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}

	err := cat.Register(simpleRule("trim"))
	var dup *DuplicateRuleError
	if !errors.As(err, &dup) {
		t.Fatalf("Register() error = %v, want *DuplicateRuleError", err)
	}
	if dup.Name != "trim" {
		t.Errorf("DuplicateRuleError.Name = %q, want trim", dup.Name)
	}
	if cat.Len() != 1 {
		t.Errorf("Len() = %d after duplicate, want 1", cat.Len())
	}
}

func TestCatalogRegister_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		rule    *RuleTemplate
		wantCfg bool
	}{
		{name: "no name", rule: &RuleTemplate{Outputs: Templates{"x"}, Command: Argv("true")}},
		{name: "no outputs", rule: &RuleTemplate{Name: "r", Command: Argv("true")}},
		{name: "no command", rule: &RuleTemplate{Name: "r", Outputs: Templates{"x"}}},
		{name: "negative retries", rule: &RuleTemplate{Name: "r", Outputs: Templates{"x"}, Command: Argv("true"), Retries: -1}},
		{name: "unbound tool", rule: &RuleTemplate{Name: "r", Tool: "bwa", Outputs: Templates{"x"}, Command: Argv("{tool}")}, wantCfg: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewCatalog(nil).Register(tt.rule)
			if tt.wantCfg {
				var cerr *config.ConfigError
				if !errors.As(err, &cerr) {
					t.Fatalf("Register() error = %v, want *config.ConfigError", err)
				}
				if cerr.Key != "tools.bwa" {
					t.Errorf("ConfigError.Key = %q, want tools.bwa", cerr.Key)
				}
				return
			}
			var terr *TemplateError
			if !errors.As(err, &terr) {
				t.Fatalf("Register() error = %v, want *TemplateError", err)
			}
		})
	}
}
