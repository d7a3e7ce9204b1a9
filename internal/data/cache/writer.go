package cache

import (
	"fmt"
	"sync"
	"time"

	"pydeps/internal/engine/parser"
)

type WriterConfig struct {
	// BatchSize is the number of files that trigger a flush. Defaults to 50.
	BatchSize int
	// FlushInterval bounds how long a file waits. Defaults to 1s.
	FlushInterval time.Duration
}

func (c WriterConfig) batchSize() int {
	if c.BatchSize <= 0 {
		return 50
	}
	return c.BatchSize
}

func (c WriterConfig) flushInterval() time.Duration {
	if c.FlushInterval <= 0 {
		return time.Second
	}
	return c.FlushInterval
}

// Writer collects parsed files from many goroutines and stores them in
// batched transactions from a single goroutine.
type Writer struct {
	store *Store
	cfg   WriterConfig

	ch      chan *parser.File
	flushCh chan chan error
	done    chan struct{}
	closed  sync.Once
	wg      sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

func NewWriter(store *Store, cfg WriterConfig) *Writer {
	w := &Writer{
		store:   store,
		cfg:     cfg,
		ch:      make(chan *parser.File, cfg.batchSize()*2),
		flushCh: make(chan chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Submit queues f. When the queue is full f is written synchronously.
func (w *Writer) Submit(f *parser.File) {
	if f == nil {
		return
	}
	select {
	case w.ch <- f:
	default:
		w.record(w.store.Upsert(f))
	}
}

// Flush writes everything queued so far and waits for it.
func (w *Writer) Flush() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	result := make(chan error, 1)
	select {
	case w.flushCh <- result:
	case <-w.done:
		return nil
	}
	select {
	case err := <-result:
		return err
	case <-w.done:
		return nil
	}
}

// Close drains the queue and stops the writer. It returns the last write
// error seen, if any.
func (w *Writer) Close() error {
	w.closed.Do(func() { close(w.done) })
	w.wg.Wait()
	w.record(w.drain())

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *Writer) record(err error) {
	if err == nil {
		return
	}
	w.mu.Lock()
	w.lastErr = err
	w.mu.Unlock()
}

func (w *Writer) run() {
	defer w.wg.Done()

	batch := make([]*parser.File, 0, w.cfg.batchSize())
	ticker := time.NewTicker(w.cfg.flushInterval())
	defer ticker.Stop()

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := w.writeBatch(batch)
		batch = batch[:0]
		w.record(err)
		return err
	}

	for {
		select {
		case f := <-w.ch:
			batch = append(batch, f)
			if len(batch) >= w.cfg.batchSize() {
				drainPending(&batch, w.ch)
				_ = flush()
				ticker.Reset(w.cfg.flushInterval())
			}
		case result := <-w.flushCh:
			drainPending(&batch, w.ch)
			result <- flush()
		case <-ticker.C:
			drainPending(&batch, w.ch)
			_ = flush()
		case <-w.done:
			drainPending(&batch, w.ch)
			_ = flush()
			return
		}
	}
}

func (w *Writer) writeBatch(files []*parser.File) error {
	if len(files) == 0 {
		return nil
	}
	tx, err := w.store.db.Begin()
	if err != nil {
		return fmt.Errorf("cache writer begin tx: %w", err)
	}
	for _, f := range files {
		if err := upsertFile(tx, f); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cache writer commit tx: %w", err)
	}
	return nil
}

func (w *Writer) drain() error {
	var files []*parser.File
	drainPending(&files, w.ch)
	return w.writeBatch(files)
}

func drainPending(batch *[]*parser.File, ch <-chan *parser.File) {
	for {
		select {
		case f := <-ch:
			*batch = append(*batch, f)
		default:
			return
		}
	}
}
