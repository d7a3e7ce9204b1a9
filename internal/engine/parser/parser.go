// # internal/engine/parser/parser.go
package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pydeps/internal/core/errors"
)

// Parser turns Python source into File summaries. Safe for concurrent use.
type Parser struct {
	pool      *ParserPool
	extractor *PythonExtractor
	// salt folds extraction options into Hash so cached parses made with
	// other options never match.
	salt string
}

type Options struct {
	// LazyCallables are helper functions whose first string argument names a
	// module imported on demand, e.g. lazy_import("numpy").
	LazyCallables []string
}

func NewParser(opts Options) *Parser {
	p := &Parser{
		pool:      NewParserPool(PythonLanguage()),
		extractor: NewPythonExtractor(opts.LazyCallables...),
	}
	if len(opts.LazyCallables) > 0 {
		names := append([]string(nil), opts.LazyCallables...)
		sort.Strings(names)
		p.salt = "lazy=" + strings.Join(names, ",")
	}
	return p
}

// Hash identifies content as parsed by p: the content hash, salted with the
// extraction options when any are set.
func (p *Parser) Hash(content []byte) string {
	if p.salt == "" {
		return ContentHash(content)
	}
	return ContentHash(append([]byte(p.salt+"\x00"), content...))
}

// IsSupportedPath reports whether filePath is a Python source file.
func (p *Parser) IsSupportedPath(filePath string) bool {
	return strings.EqualFold(filepath.Ext(filePath), ".py")
}

// ParseFile extracts imports from content. Syntax errors are reported as a
// PARSE_FAILED diagnostic on the returned file, not as an error.
func (p *Parser) ParseFile(path string, content []byte) (*File, error) {
	if !p.IsSupportedPath(path) {
		return nil, errors.New(errors.CodeNotSupported, fmt.Sprintf("not a python source file: %s", path))
	}

	sp := p.pool.Get()
	defer p.pool.Put(sp)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.New(errors.CodeInternal, "parse failed")
	}
	defer tree.Close()

	file, err := p.extractor.Extract(tree.RootNode(), content, path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "extraction failed")
	}
	file.Hash = p.Hash(content)
	return file, nil
}

// ParsePath reads and parses the file at path.
func (p *Parser) ParsePath(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeNotFound, "read source"), errors.CtxPath, path)
	}
	return p.ParseFile(path, content)
}

func ContentHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
