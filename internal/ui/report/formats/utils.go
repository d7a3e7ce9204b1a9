package formats

import (
	"fmt"
	"strings"
	"unicode"
)

// sanitizeID turns a dotted module name into a mermaid node id.
func sanitizeID(name string) string {
	out := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
	switch {
	case out == "":
		return "m"
	case unicode.IsDigit(rune(out[0])):
		return "m_" + out
	}
	return out
}

// makeIDs assigns unique ids, suffixing collisions in input order.
func makeIDs(names []string) map[string]string {
	ids := make(map[string]string, len(names))
	used := make(map[string]int, len(names))
	for _, name := range names {
		base := sanitizeID(name)
		n := used[base]
		used[base] = n + 1
		if n == 0 {
			ids[name] = base
		} else {
			ids[name] = fmt.Sprintf("%s_%d", base, n+1)
		}
	}
	return ids
}

func escapeLabel(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}
