package parallel

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_Create(t *testing.T) {
	p := New(4)
	defer p.Close()

	if p.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", p.Workers())
	}
	if !p.IsRunning() {
		t.Error("pool should be running after creation")
	}
}

func TestPool_CreateZeroWorkers(t *testing.T) {
	p := New(0)
	defer p.Close()

	want := runtime.GOMAXPROCS(0)
	if p.Workers() != want {
		t.Errorf("Workers() = %d, want %d (GOMAXPROCS)", p.Workers(), want)
	}
}

func TestPool_SubmitReturnsResult(t *testing.T) {
	p := New(2)
	defer p.Close()

	fut := Submit(p, func() int { return 42 })
	if got := fut.Wait(); got != 42 {
		t.Errorf("Wait() = %d, want 42", got)
	}
}

func TestPool_SubmitAllRunsEveryTask(t *testing.T) {
	p := New(4)
	defer p.Close()

	var ran int64
	fns := make([]func() int, 100)
	for i := range fns {
		i := i
		fns[i] = func() int {
			atomic.AddInt64(&ran, 1)
			return i
		}
	}

	futs := SubmitAll(p, fns)
	for i, f := range futs {
		if got := f.Wait(); got != i {
			t.Errorf("future %d = %d, want %d", i, got, i)
		}
	}
	if ran != 100 {
		t.Errorf("ran = %d tasks, want 100", ran)
	}
}

func TestPool_CloseIsIdempotent(t *testing.T) {
	p := New(2)
	p.Close()
	p.Close() // must not panic or double-close the done channel
	if p.IsRunning() {
		t.Error("pool should not be running after Close")
	}
}

func TestPool_CloseWaitsForQueuedWork(t *testing.T) {
	p := New(1)

	started := make(chan struct{})
	release := make(chan struct{})
	fut := Submit(p, func() int {
		close(started)
		<-release
		return 7
	})

	<-started
	done := make(chan struct{})
	go func() {
		close(release)
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after task finished")
	}

	if got := fut.Wait(); got != 7 {
		t.Errorf("Wait() = %d, want 7", got)
	}
}
