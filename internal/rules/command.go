package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/seqflow/internal/backend"
)

// {i} {o} {i:0} {o:1} {p:name} {sample} {group} {threads} {tool}
var argRe = regexp.MustCompile(`\{([A-Za-z0-9_]+)(?::([^{}]+))?\}`)

// Argv returns a CommandBuilder for an argument-vector template. The first
// element, after expansion, is the program. A token that is exactly {i} or
// {o} expands to one argument per path; embedded in a longer token the
// paths are joined with spaces.
func Argv(tmpl ...string) CommandBuilder {
	tmpl = append([]string(nil), tmpl...)
	return func(b Binding) (backend.Command, error) {
		args, err := ExpandArgs(tmpl, b)
		if err != nil {
			return backend.Command{}, err
		}
		if len(args) == 0 || args[0] == "" {
			return backend.Command{}, &TemplateError{Rule: b.Rule, Msg: "command expands to an empty program"}
		}
		return backend.Command{Program: args[0], Args: args[1:]}, nil
	}
}

// ExpandArgs expands every placeholder in tmpl against b.
func ExpandArgs(tmpl []string, b Binding) ([]string, error) {
	var out []string
	for _, tok := range tmpl {
		switch tok {
		case "{i}":
			out = append(out, b.Inputs...)
			continue
		case "{o}":
			out = append(out, b.Outputs...)
			continue
		}

		var expandErr error
		expanded := argRe.ReplaceAllStringFunc(tok, func(m string) string {
			sub := argRe.FindStringSubmatch(m)
			v, err := lookup(sub[1], sub[2], b)
			if err != nil && expandErr == nil {
				expandErr = err
			}
			return v
		})
		if expandErr != nil {
			return nil, &TemplateError{Rule: b.Rule, Msg: expandErr.Error()}
		}
		out = append(out, expanded)
	}
	return out, nil
}

func lookup(name, arg string, b Binding) (string, error) {
	switch name {
	case "i", "o":
		paths := b.Inputs
		if name == "o" {
			paths = b.Outputs
		}
		if arg == "" {
			return strings.Join(paths, " "), nil
		}
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || n >= len(paths) {
			return "", fmt.Errorf("{%s:%s} out of range (%d paths)", name, arg, len(paths))
		}
		return paths[n], nil
	case "p":
		v, ok := b.Params[arg]
		if !ok {
			return "", fmt.Errorf("unknown parameter {p:%s} (have %s)", arg, strings.Join(paramNames(b.Params), ", "))
		}
		return v, nil
	case "sample":
		if b.Sample == "" {
			return "", fmt.Errorf("{sample} used outside a per-sample rule")
		}
		return b.Sample, nil
	case "group":
		if b.Group == "" {
			return "", fmt.Errorf("{group} used without a bound group")
		}
		return b.Group, nil
	case "threads":
		return strconv.Itoa(b.Threads), nil
	case "tool":
		if b.Tool.Command == "" {
			return "", fmt.Errorf("{tool} used but rule has no tool binding")
		}
		return b.Tool.Command, nil
	default:
		return "", fmt.Errorf("unknown placeholder {%s}", name)
	}
}

func paramNames(params map[string]string) []string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
