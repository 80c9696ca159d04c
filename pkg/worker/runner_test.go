package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingWorker struct {
	runs int64
	err  error
}

func (w *countingWorker) Name() string { return "counting" }

func (w *countingWorker) Run(_ context.Context) error {
	atomic.AddInt64(&w.runs, 1)
	return w.err
}

func (w *countingWorker) count() int64 {
	return atomic.LoadInt64(&w.runs)
}

func waitFor(t *testing.T, msg string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestPeriodicWorkerRunsImmediatelyAndOnTicks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &countingWorker{}
	pw := NewPeriodicWorker(w, 10*time.Millisecond)
	pw.Start(ctx)

	waitFor(t, "several iterations", func() bool { return w.count() >= 3 })

	cancel()
	pw.Stop(time.Second)

	final := w.count()
	time.Sleep(50 * time.Millisecond)
	if w.count() != final {
		t.Error("worker kept running after stop")
	}
}

func TestPeriodicWorkerSurvivesErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &countingWorker{err: errors.New("boom")}
	pw := NewPeriodicWorker(w, 10*time.Millisecond)
	pw.Start(ctx)

	waitFor(t, "iterations despite errors", func() bool { return w.count() >= 3 })

	cancel()
	pw.Stop(time.Second)
}

func TestGroupStartStop(t *testing.T) {
	g := NewGroup(context.Background())

	first := &countingWorker{}
	second := &countingWorker{}
	g.Add(first, 10*time.Millisecond)
	g.Add(second, 10*time.Millisecond)

	g.Start()
	waitFor(t, "both workers running", func() bool {
		return first.count() >= 2 && second.count() >= 2
	})

	g.Stop(time.Second)

	a, b := first.count(), second.count()
	time.Sleep(50 * time.Millisecond)
	if first.count() != a || second.count() != b {
		t.Error("group stop must halt all workers")
	}
}
