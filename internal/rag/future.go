package rag

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tmc/langchaingo/schema"
)

var ErrSourcesTimeout = errors.New("retrieval did not finish in time")

// Future carries the retrieved passages of one chat turn. It settles exactly
// once; later resolve/reject calls are ignored.
type Future struct {
	once sync.Once
	done chan struct{}
	docs []schema.Document
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(docs []schema.Document) {
	f.once.Do(func() {
		f.docs = docs
		close(f.done)
	})
}

func (f *Future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Await waits for the future to settle. A timeout <= 0 waits until ctx ends.
// On ErrSourcesTimeout the retrieval keeps running and its result is dropped.
func (f *Future) Await(ctx context.Context, timeout time.Duration) ([]schema.Document, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-f.done:
		return f.docs, f.err
	case <-expired:
		return nil, ErrSourcesTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
