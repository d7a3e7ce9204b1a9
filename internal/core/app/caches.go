package app

import (
	"pydeps/internal/data/cache"
	"pydeps/internal/engine/parser"
)

// parseCache pairs the sqlite store with its batch writer so lookups hit
// the store directly and upserts are batched.
type parseCache struct {
	store  *cache.Store
	writer *cache.Writer
}

func openParseCache(path string) (*parseCache, func() error, error) {
	store, err := cache.Open(path)
	if err != nil {
		return nil, nil, err
	}
	c := &parseCache{store: store, writer: cache.NewWriter(store, cache.WriterConfig{})}
	closer := func() error {
		werr := c.writer.Close()
		serr := c.store.Close()
		if werr != nil {
			return werr
		}
		return serr
	}
	return c, closer, nil
}

func (c *parseCache) Lookup(path, hash string) (*parser.File, bool, error) {
	return c.store.Lookup(path, hash)
}

func (c *parseCache) Submit(file *parser.File) {
	c.writer.Submit(file)
}

func (c *parseCache) Flush() error {
	return c.writer.Flush()
}

func (c *parseCache) PruneToPaths(paths []string) error {
	return c.store.PruneToPaths(paths)
}
