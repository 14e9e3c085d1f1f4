package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/asticode/go-astikit"
)

// worker is the lifecycle primitive shared by every long-lived goroutine the
// engine owns: the reader, the up-to-three decoders, the presentation
// loop, and the audio output. It is a direct, specialized adaptation of the teacher's generic
// per-node task state machine: started/running/stopping/done, backed by a
// Closer and an EventManager, but without the arbitrary parent/child graph
// wiring that a generic flow node needs - this engine's topology is fixed.
type worker struct {
	c       *astikit.Closer
	cancel  context.CancelFunc
	ctx     context.Context
	e       *astikit.EventManager
	m       sync.Mutex // locks s
	name    string
	onStart onWorkerStart
	onStop  onWorkerStop
	s       workerStatus
	t       *astikit.Task
}

type onWorkerStart func(ctx context.Context, cancel context.CancelFunc, tc astikit.TaskCreator)

type onWorkerStop func()

const (
	eventNameWorkerClosed   = "engine.worker.closed"
	eventNameWorkerDone     = "engine.worker.done"
	eventNameWorkerRunning  = "engine.worker.running"
	eventNameWorkerStarting = "engine.worker.starting"
	eventNameWorkerStopping = "engine.worker.stopping"
)

// workerStatus is a worker's position in its started -> running ->
// stopping -> done lifecycle. Values are in execution order so callers
// can compare with < / > instead of enumerating cases.
type workerStatus uint32

const (
	workerStatusCreated workerStatus = iota
	workerStatusStarting
	workerStatusRunning
	workerStatusStopping
	workerStatusDone
)

func (s workerStatus) String() string {
	switch s {
	case workerStatusCreated:
		return "created"
	case workerStatusStarting:
		return "starting"
	case workerStatusRunning:
		return "running"
	case workerStatusStopping:
		return "stopping"
	default:
		return "done"
	}
}

func newWorker(name string, c *astikit.Closer, onStart onWorkerStart, onStop onWorkerStop) *worker {
	w := &worker{
		c:       c,
		e:       astikit.NewEventManager(),
		name:    name,
		onStart: onStart,
		onStop:  onStop,
		s:       workerStatusCreated,
	}
	w.c.Add(func() {
		if w.cancel != nil {
			w.cancel()
		}
	})
	w.c.OnClosed(func(err error) { w.e.Emit(eventNameWorkerClosed, nil) })
	return w
}

func (w *worker) status() workerStatus {
	w.m.Lock()
	defer w.m.Unlock()
	return w.s
}

func (w *worker) start(ctx context.Context, tc astikit.TaskCreator) error {
	w.m.Lock()
	if w.s != workerStatusCreated {
		w.m.Unlock()
		return fmt.Errorf("engine: worker %s has invalid status %s", w.name, w.s)
	}
	if ctx.Err() != nil {
		w.m.Unlock()
		return ctx.Err()
	}
	w.t = tc()
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.s = workerStatusStarting
	w.m.Unlock()

	w.e.Emit(eventNameWorkerStarting, nil)
	w.onStart(w.ctx, w.cancel, w.t.NewSubTask)

	w.m.Lock()
	w.s = workerStatusRunning
	w.m.Unlock()
	w.e.Emit(eventNameWorkerRunning, nil)

	go func() {
		<-w.ctx.Done()

		w.m.Lock()
		if w.s == workerStatusRunning {
			w.stopUnsafe()
		} else {
			w.m.Unlock()
		}

		w.t.Wait()
		w.c.Close()

		w.m.Lock()
		w.s = workerStatusDone
		w.m.Unlock()
		w.e.Emit(eventNameWorkerDone, nil)
		w.t.Done()
	}()
	return nil
}

func (w *worker) stop() error {
	w.m.Lock()
	if s := w.s; s != workerStatusRunning {
		w.m.Unlock()
		if s == workerStatusStopping || s == workerStatusDone {
			return nil
		}
		return fmt.Errorf("engine: worker %s has invalid status %s", w.name, s)
	}
	w.stopUnsafe()
	return nil
}

// m must be locked on entry; unlocked on return.
func (w *worker) stopUnsafe() {
	w.s = workerStatusStopping
	w.m.Unlock()

	w.e.Emit(eventNameWorkerStopping, nil)
	if w.cancel != nil {
		w.cancel()
	}
	if w.onStop != nil {
		w.onStop()
	}
}
