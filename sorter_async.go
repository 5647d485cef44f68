package mgs

import (
	"sync"

	"github.com/splatsdotcom/mgs-go/internal/mat"
)

type sorterState int32

const (
	stateIdle sorterState = iota
	stateRunning
)

// asyncDriver is the Idle/Running state machine backing a Sorter's
// synchronous and background-worker entry points (§4.E). It is embedded in
// Sorter rather than standing alone because start/try_join/get_latest are
// defined in terms of Sorter.sort, not of some Sorter-independent job.
type asyncDriver struct {
	mu    sync.Mutex
	state sorterState

	// result is the most recently completed, committed run: what
	// get_latest returns. pendingResult is the background worker's
	// output staged until try_join observes it, so get_latest during
	// Running still yields the previous result (§4.E) even if the
	// worker has already finished.
	result        []uint32
	pendingResult []uint32
	doneCh        chan struct{}
}

// beginSync transitions Idle -> Running for a synchronous Sort call,
// returning false (without changing state) if already Running.
func (d *asyncDriver) beginSync() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == stateRunning {
		return false
	}
	d.state = stateRunning
	return true
}

// endSync commits a synchronous Sort's result and returns to Idle.
func (d *asyncDriver) endSync(result []uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.result = result
	d.state = stateIdle
}

// Start spawns exactly one worker invoking Sort with the given arguments
// (§4.E). Fails with ErrInvalidArguments if already Running.
func (s *Sorter) Start(view, proj mat.Mat4, time float32) *Error {
	s.mu.Lock()
	if s.state == stateRunning {
		s.mu.Unlock()
		return newErr(ErrInvalidArguments, "start called while already running")
	}
	s.state = stateRunning
	done := make(chan struct{})
	s.doneCh = done
	s.mu.Unlock()

	go func() {
		res := computeSort(s.pg, view, proj, time, s.pool, s.opts.partitionSize, s.opts.frustumSlack)
		s.mu.Lock()
		s.pendingResult = res
		s.mu.Unlock()
		close(done)
	}()
	return nil
}

// Pending reports whether the Sorter is currently Running (§4.E).
func (s *Sorter) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateRunning
}

// TryJoin is a non-blocking join: if the background worker has completed,
// it promotes the staged result to the latest one, transitions to Idle,
// and returns true; if still running, it returns false without blocking.
// Calling TryJoin while Idle returns an error rather than false — the
// explicit resolution of the spec's own noted ambiguity on this point.
func (s *Sorter) TryJoin() (bool, *Error) {
	s.mu.Lock()
	if s.state == stateIdle {
		s.mu.Unlock()
		return false, newErr(ErrInvalidArguments, "try_join called while idle")
	}
	done := s.doneCh
	s.mu.Unlock()

	select {
	case <-done:
		s.mu.Lock()
		s.result = s.pendingResult
		s.pendingResult = nil
		s.state = stateIdle
		s.mu.Unlock()
		return true, nil
	default:
		return false, nil
	}
}

// GetLatest returns the most recently completed sort result. Calling
// during Running yields the previous result (or an empty slice if the
// Sorter has never completed a sort), since a just-finished background
// run is only promoted into the latest result by TryJoin.
func (s *Sorter) GetLatest() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uint32, len(s.result))
	copy(out, s.result)
	return out
}

// joinBeforeRelease blocks until any in-flight async worker completes,
// so Close never releases the pool (or lets the caller drop the
// PackedGaussians) while a worker still reads it (§4.D: "lifetime of the
// Sorter must not exceed the last such reference"; §4.E: "the worker must
// be joined before the Gaussian buffer it reads is released").
func (s *Sorter) joinBeforeRelease() {
	s.mu.Lock()
	if s.state != stateRunning {
		s.mu.Unlock()
		return
	}
	done := s.doneCh
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.mu.Lock()
	s.state = stateIdle
	s.mu.Unlock()
}
