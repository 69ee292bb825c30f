// Package worker runs a fixed pool of goroutines draining a shared job
// channel. The event publisher uses it as its delivery pump.
package worker

import (
	"os"
	"os/signal"
	"syscall"
)

// WorkerHandler processes one job. The worker index is passed so handlers
// can keep per-worker state without locking.
type WorkerHandler func(workerIndex int, job interface{})

// WorkerManager fans jobs from a single channel out to a pool of workers.
// The job channel is owned by the caller and is never closed here; stop the
// pool with Exit instead.
type WorkerManager struct {
	jobChannel     chan interface{}
	numberOfWorker int
	sigTerm        chan os.Signal
	do             WorkerHandler
}

// NewWorkerManager wires a manager around the caller's job channel. The
// caller decides the channel's buffering; the manager only reads from it.
func NewWorkerManager(numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	sigTerm := make(chan os.Signal, numberOfWorkers)
	signal.Notify(sigTerm, syscall.SIGTERM)
	return &WorkerManager{
		jobChannel:     jobChannel,
		numberOfWorker: numberOfWorkers,
		sigTerm:        sigTerm,
	}
}

// SetWorker installs the handler. Must be called before Start.
func (m *WorkerManager) SetWorker(handler WorkerHandler) {
	m.do = handler
}

// Start launches the pool and blocks until every worker has been told to
// stop via Exit or a SIGTERM.
func (m *WorkerManager) Start() error {
	done := make(chan struct{}, m.numberOfWorker)
	for i := 0; i < m.numberOfWorker; i++ {
		go func(index int) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case job, ok := <-m.jobChannel:
					if !ok {
						return
					}
					m.do(index, job)
				case <-m.sigTerm:
					return
				}
			}
		}(i)
	}
	for i := 0; i < m.numberOfWorker; i++ {
		<-done
	}
	return nil
}

// Exit asks every worker to stop. Jobs already picked up finish; jobs still
// buffered in the channel are left behind.
func (m *WorkerManager) Exit() {
	for i := 0; i < m.numberOfWorker; i++ {
		m.sigTerm <- syscall.SIGSTOP
	}
}
