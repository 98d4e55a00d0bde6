package rules

import "fmt"

// DuplicateRuleError is returned when two templates share a name.
type DuplicateRuleError struct {
	Name string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("duplicate rule %q", e.Name)
}

// TemplateError reports a malformed rule, path pattern or command template.
type TemplateError struct {
	Rule string
	Msg  string
}

func (e *TemplateError) Error() string {
	if e.Rule == "" {
		return "rule template: " + e.Msg
	}
	return fmt.Sprintf("rule %q: %s", e.Rule, e.Msg)
}
