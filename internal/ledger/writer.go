package ledger

import (
	"context"
	"sync"
)

// Writer is the single writer slot of a ledger. Completion records are
// enqueued and written in order by one goroutine. After the first failed
// write the remaining records are dropped and Failed is closed.
type Writer struct {
	ledger Ledger
	ctx    context.Context
	reqs   chan Entry
	done   chan struct{}
	failed chan struct{}

	mu  sync.Mutex
	err error
}

// NewWriter starts the writer goroutine. Writes outlive cancellation of ctx
// so that completions observed before shutdown are still recorded.
func NewWriter(ctx context.Context, l Ledger, buffer int) *Writer {
	w := &Writer{
		ledger: l,
		ctx:    context.WithoutCancel(ctx),
		reqs:   make(chan Entry, buffer),
		done:   make(chan struct{}),
		failed: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Writer) loop() {
	defer close(w.done)
	for e := range w.reqs {
		if w.Err() != nil {
			continue
		}
		if err := w.ledger.Record(w.ctx, e); err != nil {
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
			close(w.failed)
		}
	}
}

// Enqueue queues a record. It must not be called after Close.
func (w *Writer) Enqueue(e Entry) {
	w.reqs <- e
}

// Failed is closed after the first failed write.
func (w *Writer) Failed() <-chan struct{} {
	return w.failed
}

// Err returns the first write error, if any.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close drains the queue and returns the first write error.
func (w *Writer) Close() error {
	close(w.reqs)
	<-w.done
	return w.Err()
}
