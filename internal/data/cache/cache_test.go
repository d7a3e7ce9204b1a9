package cache

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"pydeps/internal/core/errors"
	"pydeps/internal/engine/imports"
	"pydeps/internal/engine/parser"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleFile(path, hash string) *parser.File {
	return &parser.File{
		Path: path,
		Hash: hash,
		Imports: []imports.RawImport{
			{Path: "numpy", Line: 1},
			{Path: "util", Level: 1, From: true, Names: []string{"helper"}, Line: 2, Lazy: true},
		},
		Diagnostics: []imports.Diagnostic{{Path: path, Line: 9, Code: errors.CodeParseFailed, Message: "bad"}},
		ParsedAt:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestStoreLookupByHash(t *testing.T) {
	s := openStore(t)
	if err := s.Upsert(sampleFile("/src/a.py", "h1")); err != nil {
		t.Fatal(err)
	}

	got, ok, err := s.Lookup("/src/a.py", "h1")
	if err != nil || !ok {
		t.Fatalf("Lookup = %v, %v", ok, err)
	}
	if len(got.Imports) != 2 || got.Imports[1].Level != 1 || !got.Imports[1].Lazy || got.Imports[1].Names[0] != "helper" {
		t.Fatalf("imports not round-tripped: %+v", got.Imports)
	}
	if !got.Failed() {
		t.Fatal("diagnostics not round-tripped")
	}

	if _, ok, _ := s.Lookup("/src/a.py", "h2"); ok {
		t.Fatal("changed content must miss")
	}
	if _, ok, _ := s.Lookup("/src/b.py", "h1"); ok {
		t.Fatal("unknown path must miss")
	}
	if hits, misses := s.Stats(); hits != 1 || misses != 2 {
		t.Fatalf("stats = %d hits, %d misses", hits, misses)
	}
}

func TestStorePruneToPaths(t *testing.T) {
	s := openStore(t)
	for _, p := range []string{"/a.py", "/b.py", "/c.py"} {
		if err := s.Upsert(sampleFile(p, "h")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.PruneToPaths([]string{"/b.py"}); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(); n != 1 {
		t.Fatalf("Len = %d after prune", n)
	}
	if _, ok, _ := s.Lookup("/b.py", "h"); !ok {
		t.Fatal("kept path was pruned")
	}
	if err := s.PruneToPaths(nil); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(); n != 0 {
		t.Fatalf("Len = %d after empty prune", n)
	}
}

func TestOpenRejectsDirectory(t *testing.T) {
	if _, err := Open(t.TempDir()); err == nil {
		t.Fatal("expected error for a directory path")
	}
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for an empty path")
	}
}

func TestWriterBatchesConcurrentSubmits(t *testing.T) {
	s := openStore(t)
	w := NewWriter(s, WriterConfig{BatchSize: 4, FlushInterval: time.Hour})

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 6; i++ {
				w.Submit(sampleFile(filepath.Join("/src", string(rune('a'+g)), string(rune('a'+i))+".py"), "h"))
			}
		}(g)
	}
	wg.Wait()

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(); n != 30 {
		t.Fatalf("Len = %d after flush, want 30", n)
	}

	w.Submit(sampleFile("/late.py", "h"))
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Lookup("/late.py", "h"); !ok {
		t.Fatal("Close must drain queued files")
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush after Close = %v", err)
	}
}
