package formats

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pelletier/go-toml/v2/unstable"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/requirements"
)

// PyprojectTarget returns the key path of the array a resolver writes to.
// An empty optional name selects [project] dependencies.
func PyprojectTarget(optional string) []string {
	if optional == "" {
		return []string{"project", "dependencies"}
	}
	return []string{"project", "optional-dependencies", optional}
}

// RenderTOMLArray renders requirements as a multi-line TOML string array.
func RenderTOMLArray(reqs []requirements.Requirement, opts RequirementsOptions) string {
	var lines []string
	if opts.Notice && len(reqs) > 0 {
		lines = append(lines, opts.indent(1)+"# "+AutogenNotice(opts.Resolver))
	}
	for _, req := range reqs {
		if req.Mode == requirements.Exclude {
			continue
		}
		entry := tomlQuote(req.Name)
		names := []string(nil)
		if opts.Sources {
			names = sourceNames(req, opts.SourceRoots)
		}
		tag := tags(req)

		if req.Mode == requirements.Comment {
			line := opts.indent(1) + "# " + entry
			if tag != "" {
				line += " " + tag
			}
			lines = append(lines, line)
		} else {
			line := opts.indent(1) + entry + ","
			if opts.Compact && len(names) > 0 {
				line += " # " + strings.Join(names, ", ")
			}
			lines = append(lines, line)
		}
		if opts.Compact {
			continue
		}
		for _, name := range names {
			lines = append(lines, fmt.Sprintf("%s# %s %s", opts.indent(2), sourceArrow, name))
		}
	}
	if len(lines) == 0 {
		return "[]"
	}
	return "[\n" + strings.Join(lines, "\n") + "\n]"
}

func tomlQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// SplicePyproject replaces the array at keys inside content, creating the
// key or its table when missing. Everything else in the document is kept
// byte for byte. The result is decoded again and rejected if the written
// array does not hold exactly the included requirements.
func SplicePyproject(content string, keys []string, reqs []requirements.Requirement, opts RequirementsOptions) (string, error) {
	if len(keys) < 2 {
		return "", errors.New(errors.CodeValidationError, "pyproject target needs a table and a key")
	}
	entries, err := scanTOML(content)
	if err != nil {
		return "", err
	}

	array := RenderTOMLArray(reqs, opts)
	full := strings.Join(keys, ".")
	table := strings.Join(keys[:len(keys)-1], ".")
	key := keys[len(keys)-1]

	var out string
	switch kv, ok := findKey(entries, full); {
	case ok:
		out = content[:kv.valueStart] + array + content[kv.valueEnd:]
	default:
		line := bareOrQuoted(key) + " = " + array + "\n"
		if hdr, ok := findTable(entries, table); ok {
			at, prefix := tableEnd(content, entries, hdr)
			out = content[:at] + prefix + line + content[at:]
		} else {
			out = strings.TrimRight(content, "\n")
			if out != "" {
				out += "\n\n"
			}
			out += "[" + table + "]\n" + line
		}
	}

	if err := verifySplice(out, keys, reqs); err != nil {
		return "", err
	}
	return out, nil
}

func verifySplice(doc string, keys []string, reqs []requirements.Requirement) error {
	var decoded map[string]any
	if _, err := toml.Decode(doc, &decoded); err != nil {
		return errors.Wrap(err, errors.CodeValidationError, "spliced pyproject is not valid TOML")
	}
	var node any = decoded
	for _, k := range keys {
		table, ok := node.(map[string]any)
		if !ok {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("pyproject key %q is not a table", k))
		}
		node = table[k]
	}
	values, ok := node.([]any)
	if !ok {
		return errors.New(errors.CodeValidationError, fmt.Sprintf("pyproject %s is not an array", strings.Join(keys, ".")))
	}

	var want []string
	for _, r := range reqs {
		if r.Mode == requirements.Include {
			want = append(want, r.Name)
		}
	}
	if len(values) != len(want) {
		return errors.New(errors.CodeValidationError, fmt.Sprintf(
			"pyproject %s holds %d entries after writing, expected %d", strings.Join(keys, "."), len(values), len(want)))
	}
	for i, v := range values {
		if s, _ := v.(string); s != want[i] {
			return errors.New(errors.CodeValidationError, fmt.Sprintf("pyproject entry %d is %v, expected %q", i, v, want[i]))
		}
	}
	return nil
}

func bareOrQuoted(key string) string {
	for _, r := range key {
		if !(r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')) {
			return tomlQuote(key)
		}
	}
	return key
}

// tomlEntry is a header or a key/value pair found at the top level of a
// document. Offsets index into the scanned content.
type tomlEntry struct {
	header     bool
	arrayTable bool
	path       string // table name for headers, table + key for pairs
	start      int
	valueStart int
	valueEnd   int
}

func findKey(entries []tomlEntry, full string) (tomlEntry, bool) {
	for _, e := range entries {
		if !e.header && e.path == full {
			return e, true
		}
	}
	return tomlEntry{}, false
}

func findTable(entries []tomlEntry, name string) (int, bool) {
	for i, e := range entries {
		if e.header && !e.arrayTable && e.path == name {
			return i, true
		}
	}
	return 0, false
}

// tableEnd is the insertion point after the last line of the table whose
// header is entries[hdr], and the prefix needed to start a fresh line there.
func tableEnd(content string, entries []tomlEntry, hdr int) (int, string) {
	end := len(content)
	for _, e := range entries[hdr+1:] {
		if e.header {
			end = e.start
			break
		}
	}
	pos := len(strings.TrimRight(content[:end], " \t\r\n"))
	switch {
	case strings.HasPrefix(content[pos:], "\r\n"):
		return pos + 2, ""
	case strings.HasPrefix(content[pos:], "\n"):
		return pos + 1, ""
	}
	return pos, "\n"
}

// scanTOML lists the top-level expressions of a document with the byte
// ranges needed to splice it. Nested values are not descended into.
func scanTOML(content string) ([]tomlEntry, error) {
	doc := []byte(content)
	var p unstable.Parser
	p.Reset(doc)

	var entries []tomlEntry
	table := ""
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			name, first, _ := keyPath(expr)
			table = name
			entries = append(entries, tomlEntry{
				header:     true,
				arrayTable: expr.Kind == unstable.ArrayTable,
				path:       name,
				start:      lineStart(doc, first),
			})
		case unstable.KeyValue:
			name, first, last := keyPath(expr)
			if table != "" {
				name = table + "." + name
			}
			start, end, ok := valueRange(doc, expr, last)
			if !ok {
				return nil, syntaxError(&p, fmt.Sprintf("cannot locate the value of %s", name), first)
			}
			entries = append(entries, tomlEntry{path: name, start: lineStart(doc, first), valueStart: start, valueEnd: end})
		}
	}
	if err := p.Error(); err != nil {
		var perr *unstable.ParserError
		if stderrors.As(err, &perr) && len(perr.Highlight) > 0 {
			return nil, syntaxError(&p, perr.Message, int(p.Range(perr.Highlight).Offset))
		}
		return nil, errors.Wrap(err, errors.CodeValidationError, "pyproject")
	}
	return entries, nil
}

// keyPath joins the dotted key of a table header or pair, and reports the
// offsets where the key starts and ends.
func keyPath(expr *unstable.Node) (string, int, int) {
	var parts []string
	first, last := -1, 0
	it := expr.Key()
	for it.Next() {
		k := it.Node()
		parts = append(parts, string(k.Data))
		if first < 0 {
			first = int(k.Raw.Offset)
		}
		last = int(k.Raw.Offset + k.Raw.Length)
	}
	return strings.Join(parts, "."), max(first, 0), last
}

// valueRange is the byte range of the value of a key/value expression. The
// value node carries its own range for strings and arrays; otherwise it is
// the tail of the expression after the '=' that follows the key.
func valueRange(doc []byte, expr *unstable.Node, keyEnd int) (int, int, bool) {
	if v := expr.Value(); v != nil && v.Raw.Length > 0 {
		return int(v.Raw.Offset), int(v.Raw.Offset + v.Raw.Length), true
	}
	if expr.Raw.Length == 0 {
		return 0, 0, false
	}
	end := int(expr.Raw.Offset + expr.Raw.Length)
	eq := bytes.IndexByte(doc[keyEnd:end], '=')
	if eq < 0 {
		return 0, 0, false
	}
	start := keyEnd + eq + 1
	for start < end && (doc[start] == ' ' || doc[start] == '\t') {
		start++
	}
	return start, end, true
}

func lineStart(doc []byte, offset int) int {
	return bytes.LastIndexByte(doc[:offset], '\n') + 1
}

func syntaxError(p *unstable.Parser, msg string, offset int) error {
	line := p.Shape(unstable.Range{Offset: uint32(offset)}).Start.Line
	return errors.AddContext(errors.New(errors.CodeValidationError, "pyproject: "+msg), errors.CtxLine, line)
}
