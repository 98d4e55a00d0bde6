package manifest

import (
	"fmt"
	"strconv"
)

// ManifestError reports a malformed sample table. Always fatal before any
// task runs.
type ManifestError struct {
	Path string
	Line int // 1-based; 0 when not tied to a row
	Msg  string
}

func (e *ManifestError) Error() string {
	switch {
	case e.Path != "" && e.Line > 0:
		return fmt.Sprintf("manifest %s:%d: %s", e.Path, e.Line, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("manifest %s: %s", e.Path, e.Msg)
	default:
		return "manifest: " + e.Msg
	}
}

func quote(s string) string {
	return strconv.Quote(s)
}
