package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
)

func findImport(t *testing.T, file *File, path string, level int) imports.RawImport {
	t.Helper()
	for _, imp := range file.Imports {
		if imp.Path == path && imp.Level == level {
			return imp
		}
	}
	t.Fatalf("import %q (level %d) not found in %+v", path, level, file.Imports)
	return imports.RawImport{}
}

func TestPythonExtraction(t *testing.T) {
	p := NewParser(Options{})

	code := `import os
import sys as system, json
from auth.utils import login as auth_login, logout
from . import local_mod
from ..parent import parent_mod
from .sibling import *
from __future__ import annotations
from typing import TYPE_CHECKING

if TYPE_CHECKING:
    from pandas import DataFrame
else:
    import csv

try:
    import ujson
except ImportError:
    ujson = None

def handler(a):
    import numpy.linalg
    return a

class Service:
    def run(self):
        from rich.console import Console
        return Console
`
	file, err := p.ParseFile("mod.py", []byte(code))
	if err != nil {
		t.Fatal(err)
	}
	if len(file.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics: %v", file.Diagnostics)
	}

	osImp := findImport(t, file, "os", 0)
	if osImp.Line != 1 || osImp.From || osImp.Lazy || osImp.Guarded {
		t.Errorf("unexpected os import %+v", osImp)
	}
	findImport(t, file, "sys", 0)
	findImport(t, file, "json", 0)

	auth := findImport(t, file, "auth.utils", 0)
	if !auth.From || len(auth.Names) != 2 || auth.Names[0] != "login" || auth.Names[1] != "logout" {
		t.Errorf("unexpected from import %+v", auth)
	}

	local := findImport(t, file, "", 1)
	if len(local.Names) != 1 || local.Names[0] != "local_mod" {
		t.Errorf("unexpected bare relative import %+v", local)
	}
	parent := findImport(t, file, "parent", 2)
	if parent.Line != 5 {
		t.Errorf("expected line 5, got %d", parent.Line)
	}
	star := findImport(t, file, "sibling", 1)
	if len(star.Names) != 1 || star.Names[0] != "*" {
		t.Errorf("expected wildcard name, got %v", star.Names)
	}
	future := findImport(t, file, "__future__", 0)
	if len(future.Names) != 1 || future.Names[0] != "annotations" {
		t.Errorf("unexpected future import %+v", future)
	}

	if pandas := findImport(t, file, "pandas", 0); !pandas.Lazy {
		t.Error("TYPE_CHECKING import should be lazy")
	}
	if csv := findImport(t, file, "csv", 0); csv.Lazy {
		t.Error("else branch of TYPE_CHECKING is evaluated at runtime")
	}
	if ujson := findImport(t, file, "ujson", 0); !ujson.Guarded || ujson.Lazy {
		t.Errorf("unexpected try import %+v", ujson)
	}
	if np := findImport(t, file, "numpy.linalg", 0); !np.Lazy {
		t.Error("function-level import should be lazy")
	}
	if rich := findImport(t, file, "rich.console", 0); !rich.Lazy {
		t.Error("method-level import should be lazy")
	}
}

func TestPythonExtraction_SyntaxError(t *testing.T) {
	p := NewParser(Options{})
	file, err := p.ParseFile("broken.py", []byte("import os\ndef broken(:\n    pass\n"))
	if err != nil {
		t.Fatalf("syntax errors must not be returned as errors: %v", err)
	}
	if len(file.Imports) != 0 {
		t.Errorf("expected no imports from a broken file, got %v", file.Imports)
	}
	if !file.Failed() || file.Diagnostics[0].Code != errors.CodeParseFailed {
		t.Errorf("expected PARSE_FAILED diagnostic, got %v", file.Diagnostics)
	}
}

func TestPythonExtraction_SyntaxErrorLineAfterDeepNesting(t *testing.T) {
	nested := strings.Repeat("[", 300) + strings.Repeat("]", 300)
	code := "x = " + nested + "\nimport os\ndef broken(:\n    pass\n"

	file, err := NewParser(Options{}).ParseFile("deep.py", []byte(code))
	if err != nil {
		t.Fatal(err)
	}
	if !file.Failed() || file.Diagnostics[0].Line != 3 {
		t.Errorf("expected PARSE_FAILED at line 3, got %v", file.Diagnostics)
	}
}

func TestPythonExtraction_LazyCallables(t *testing.T) {
	p := NewParser(Options{LazyCallables: []string{"lazy_import"}})
	code := `from lazy_loader import lazy_import
buzz = lazy_import("buzz.core")
other = load("nope")
`
	file, err := p.ParseFile("plugins.py", []byte(code))
	if err != nil {
		t.Fatal(err)
	}
	buzz := findImport(t, file, "buzz.core", 0)
	if !buzz.Lazy || buzz.Line != 2 {
		t.Errorf("unexpected lazy callable import %+v", buzz)
	}
	for _, imp := range file.Imports {
		if imp.Path == "nope" {
			t.Error("unconfigured callables must be ignored")
		}
	}
}

func TestParser_UnsupportedAndPaths(t *testing.T) {
	p := NewParser(Options{})
	if _, err := p.ParseFile("README.md", []byte("# hi")); !errors.IsCode(err, errors.CodeNotSupported) {
		t.Errorf("expected NOT_SUPPORTED, got %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "app.py")
	if err := os.WriteFile(path, []byte("import requests\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	file, err := p.ParsePath(path)
	if err != nil {
		t.Fatal(err)
	}
	if file.Hash != ContentHash([]byte("import requests\n")) {
		t.Error("expected content hash to be set")
	}
	findImport(t, file, "requests", 0)

	if _, err := p.ParsePath(filepath.Join(dir, "missing.py")); !errors.IsCode(err, errors.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}
