package rdisplay

import (
	"context"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ErrDispatcherStopped is returned by Invoke once Run has returned.
var ErrDispatcherStopped = errors.New("display dispatcher stopped")

const pumpInterval = 10 * time.Millisecond

type job struct {
	fn   func() error
	done chan error
}

// Dispatcher serializes every display call onto one locked OS thread.
// Windowing toolkits require this; callers block until their call ran.
type Dispatcher struct {
	jobs    chan job
	stopped chan struct{}
	log     zerolog.Logger
}

// NewDispatcher creates a dispatcher. Nothing runs until Run is called.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		jobs:    make(chan job),
		stopped: make(chan struct{}),
		log:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run executes jobs until ctx is done. Call it from the goroutine that
// should own the display, ideally the main one.
func (d *Dispatcher) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.stopped)

	d.log.Debug().Msg("display thread running")
	pump := time.NewTicker(pumpInterval)
	defer pump.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case j := <-d.jobs:
			j.done <- d.call(j.fn)
		case <-pump.C:
			for _, p := range eventPumps {
				p()
			}
		}
	}
}

func (d *Dispatcher) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("display call panicked: %v", r)
		}
	}()
	return fn()
}

// Invoke runs fn on the display thread and returns its error.
func (d *Dispatcher) Invoke(ctx context.Context, fn func() error) error {
	j := job{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.stopped:
		return ErrDispatcherStopped
	case d.jobs <- j:
	}
	// once accepted the job always completes
	return <-j.done
}
