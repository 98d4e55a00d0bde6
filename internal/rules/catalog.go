package rules

import (
	"fmt"

	"github.com/aristath/seqflow/internal/config"
)

// Catalog is the registry of rule templates, in registration order, plus
// the tool bindings rules may refer to.
type Catalog struct {
	rules  []*RuleTemplate
	byName map[string]*RuleTemplate
	tools  map[string]ToolBinding

	// Trim is the trimming variant chosen when the builtin rules were
	// registered. Zero for catalogs without builtin rules.
	Trim TrimStrategy
}

// NewCatalog returns an empty catalog over the given tool bindings.
func NewCatalog(tools map[string]ToolBinding) *Catalog {
	bound := make(map[string]ToolBinding, len(tools))
	for name, tb := range tools {
		tb.Name = name
		bound[name] = tb
	}
	return &Catalog{
		byName: make(map[string]*RuleTemplate),
		tools:  bound,
	}
}

// ToolsFromConfig converts configured tool bindings.
func ToolsFromConfig(cfg *config.PipelineConfig) map[string]ToolBinding {
	tools := make(map[string]ToolBinding, len(cfg.Tools))
	for name, tc := range cfg.Tools {
		tools[name] = ToolBinding{Name: name, Command: tc.Command, Version: tc.Version}
	}
	return tools
}

// Register adds a template. Names are unique; a rule naming a tool needs a
// binding for it.
func (c *Catalog) Register(t *RuleTemplate) error {
	if err := t.validate(); err != nil {
		return err
	}
	if _, exists := c.byName[t.Name]; exists {
		return &DuplicateRuleError{Name: t.Name}
	}
	if t.Tool != "" {
		if _, ok := c.tools[t.Tool]; !ok {
			return &config.ConfigError{
				Key: "tools." + t.Tool,
				Msg: fmt.Sprintf("no binding for tool used by rule %q", t.Name),
			}
		}
	}
	c.rules = append(c.rules, t)
	c.byName[t.Name] = t
	return nil
}

// Get returns the template with the given name.
func (c *Catalog) Get(name string) (*RuleTemplate, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Rules returns all templates in registration order.
func (c *Catalog) Rules() []*RuleTemplate {
	return append([]*RuleTemplate(nil), c.rules...)
}

// Len returns the number of registered templates.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Tool returns the binding for a tool name.
func (c *Catalog) Tool(name string) (ToolBinding, bool) {
	tb, ok := c.tools[name]
	return tb, ok
}
