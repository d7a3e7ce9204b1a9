// # internal/engine/parser/pool_test.go
package parser

import (
	"sync"
	"testing"
)

func TestParserPool_GetPut(t *testing.T) {
	pool := NewParserPool(PythonLanguage())

	sp := pool.Get()
	if sp == nil {
		t.Fatal("expected non-nil parser from pool")
	}
	if pool.Active() != 1 {
		t.Errorf("expected 1 active parser, got %d", pool.Active())
	}
	pool.Put(sp)
	if pool.Active() != 0 {
		t.Errorf("expected 0 active parsers, got %d", pool.Active())
	}
}

func TestParserPool_PutNil(t *testing.T) {
	pool := NewParserPool(PythonLanguage())
	pool.Put(nil)
}

func TestParserPool_ParsesAfterReset(t *testing.T) {
	pool := NewParserPool(PythonLanguage())

	sp := pool.Get()
	sp.Reset()
	pool.Put(sp)

	sp2 := pool.Get()
	defer pool.Put(sp2)

	tree := sp2.Parse([]byte("import os\n"), nil)
	if tree == nil {
		t.Fatal("expected a parse tree after reset")
	}
	defer tree.Close()
	if tree.RootNode().HasError() {
		t.Error("expected error-free tree")
	}
}

func TestParserPool_ConcurrentAccess(t *testing.T) {
	p := NewParser(Options{})

	const goroutines = 16
	const iters = 25

	var wg sync.WaitGroup
	wg.Add(goroutines)
	src := []byte("import os\nfrom .x import y\n")

	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iters; j++ {
				file, err := p.ParseFile("m.py", src)
				if err != nil {
					t.Errorf("parse: %v", err)
					return
				}
				if len(file.Imports) != 2 {
					t.Errorf("expected 2 imports, got %d", len(file.Imports))
					return
				}
			}
		}()
	}
	wg.Wait()
}
