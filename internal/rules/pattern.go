package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/aristath/seqflow/internal/manifest"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// Templates is a list of path templates using {sample}, {read1}, {read2}
// and {group}.
//
// A template naming a sample field is expanded once per sample in
// Wildcards.Samples unless a sample is bound; a template naming only {group}
// is expanded once per group in Wildcards.Groups unless a group is bound.
// Templates without placeholders are fixed paths.
type Templates []string

// Resolve implements PathSource.
func (ts Templates) Resolve(w Wildcards) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, tpl := range ts {
		hasSample, hasGroup, err := inspect(tpl)
		if err != nil {
			return nil, err
		}

		switch {
		case w.Sample != nil:
			add(substitute(tpl, w.Sample, w.Sample.Group))

		case hasSample:
			for i := range w.Samples {
				s := &w.Samples[i]
				group := w.Group
				if group == "" {
					group = s.Group
				}
				add(substitute(tpl, s, group))
			}

		case hasGroup && w.Group != "":
			add(substitute(tpl, nil, w.Group))

		case hasGroup:
			for _, g := range w.Groups {
				add(substitute(tpl, nil, g))
			}

		default:
			add(tpl)
		}
	}
	return out, nil
}

// inspect reports which placeholder kinds a template uses and rejects
// unknown ones.
func inspect(tpl string) (hasSample, hasGroup bool, err error) {
	for _, m := range placeholderRe.FindAllStringSubmatch(tpl, -1) {
		switch m[1] {
		case "sample", "read1", "read2":
			hasSample = true
		case "group":
			hasGroup = true
		default:
			return false, false, fmt.Errorf("unknown placeholder {%s} in path %q", m[1], tpl)
		}
	}
	return hasSample, hasGroup, nil
}

func substitute(tpl string, s *manifest.Sample, group string) string {
	r := []string{"{group}", group}
	if s != nil {
		r = append(r, "{sample}", s.ID, "{read1}", s.Read1, "{read2}", s.Read2)
	}
	return strings.NewReplacer(r...).Replace(tpl)
}
