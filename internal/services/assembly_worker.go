package services

import (
	"context"
	"sync"

	"filedepot/pkg/logger"
)

// AssemblyWorker consumes queued finalize jobs. Jobs outlive the request
// that enqueued them; nothing a client does after finalize (including
// abandoning the poll loop) cancels a running assembly.
type AssemblyWorker struct {
	finalize *FinalizeService
	logger   *logger.Logger
	jobs     chan string
	workers  int
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewAssemblyWorker(finalize *FinalizeService, l *logger.Logger, workers int) *AssemblyWorker {
	if workers <= 0 {
		workers = 4
	}
	return &AssemblyWorker{
		finalize: finalize,
		logger:   l,
		jobs:     make(chan string, 256),
		workers:  workers,
		stopChan: make(chan struct{}),
	}
}

// Enqueue hands a session token to the pool. Returns false when the
// queue is saturated; the caller parks the session as failed so the
// client can retry.
func (w *AssemblyWorker) Enqueue(token string) bool {
	select {
	case w.jobs <- token:
		return true
	default:
		return false
	}
}

// Start begins the worker loop
func (w *AssemblyWorker) Start() {
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Stop drains nothing: in-flight jobs finish, queued jobs wait for the
// next start. Assembly is idempotent, so an unserved job only means the
// client retries finalize.
func (w *AssemblyWorker) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

func (w *AssemblyWorker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopChan:
			return
		case token := <-w.jobs:
			w.finalize.RunAssemblyJob(context.Background(), token)
		}
	}
}
