package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/assistantd/pkg/models"
)

func TestStreamDeliversInOrder(t *testing.T) {
	stream := newOutputStream()
	go func() {
		stream.SendToken("a")
		stream.SendToken("b")
		stream.Finish(nil)
	}()

	ctx := context.Background()
	var tokens []string
	for {
		ev, ok := stream.Next(ctx)
		if !ok {
			if !ev.End {
				t.Error("stream ended without End event")
			}
			break
		}
		tokens = append(tokens, ev.Token)
	}
	if len(tokens) != 2 || tokens[0] != "a" || tokens[1] != "b" {
		t.Errorf("tokens = %v", tokens)
	}
}

func TestStreamBuffersWithoutConsumer(t *testing.T) {
	stream := newOutputStream()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			stream.SendToken("x")
		}
		stream.Finish(nil)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked without a consumer")
	}

	ctx := context.Background()
	count := 0
	for {
		_, ok := stream.Next(ctx)
		if !ok {
			break
		}
		count++
	}
	if count != 1000 {
		t.Errorf("consumed %d tokens", count)
	}
}

func TestStreamFinishWithError(t *testing.T) {
	stream := newOutputStream()
	wantErr := errors.New("backend down")
	go stream.Finish(wantErr)

	ctx := context.Background()
	ev, ok := stream.Next(ctx)
	if !ok || !errors.Is(ev.Err, wantErr) {
		t.Errorf("Next() = %+v, %v", ev, ok)
	}
	if _, ok := stream.Next(ctx); ok {
		t.Error("stream did not end after error")
	}
}

func TestStreamNextHonorsContext(t *testing.T) {
	stream := newOutputStream()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := stream.Next(ctx); ok {
		t.Error("Next() = ok on cancelled context")
	}
}

// waitStream polls the registry until the run's stream is registered by the
// dispatch loop.
func waitStream(t *testing.T, s *Scheduler, runID string) *OutputStream {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		if stream, ok := s.Stream(runID); ok {
			return stream
		}
		if time.Now().After(deadline) {
			t.Fatalf("stream for %s never registered", runID)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerExecutesSubmittedRuns(t *testing.T) {
	var mu sync.Mutex
	executed := map[string]bool{}
	execute := func(_ context.Context, run *models.Run, stream *OutputStream) {
		mu.Lock()
		executed[run.ID] = true
		mu.Unlock()
		stream.SendToken("out:" + run.ID)
		stream.Finish(nil)
	}

	s := New(execute, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	ids := []string{"run_1", "run_2", "run_3"}
	for _, id := range ids {
		s.Submit(&models.Run{ID: id})
	}

	for _, id := range ids {
		stream := waitStream(t, s, id)
		ev, ok := stream.Next(ctx)
		if !ok {
			t.Fatalf("stream %s ended early", id)
		}
		if ev.Token != "out:"+id {
			t.Errorf("stream %s token = %q", id, ev.Token)
		}
		if _, ok := stream.Next(ctx); ok {
			t.Errorf("stream %s has extra events", id)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(executed) != 3 {
		t.Errorf("executed = %v", executed)
	}
}

func TestQueuedRunHasNoStreamBeforeDispatch(t *testing.T) {
	execute := func(_ context.Context, _ *models.Run, stream *OutputStream) {
		stream.Finish(nil)
	}
	s := New(execute, Options{})

	// The loop is never started, so the run stays queued.
	s.Submit(&models.Run{ID: "run_queued"})
	if _, ok := s.Stream("run_queued"); ok {
		t.Error("Stream(run_queued) registered before dispatch")
	}
}

// Two runs executing at the same time deliver tokens on their own streams
// while both are still in flight.
func TestSchedulerConcurrentRunsStreamIndependently(t *testing.T) {
	release := make(chan struct{})
	execute := func(_ context.Context, run *models.Run, stream *OutputStream) {
		stream.SendToken("first:" + run.ID)
		<-release
		stream.SendToken("second:" + run.ID)
		stream.Finish(nil)
	}

	s := New(execute, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Submit(&models.Run{ID: "run_a"})
	s.Submit(&models.Run{ID: "run_b"})
	a := waitStream(t, s, "run_a")
	b := waitStream(t, s, "run_b")

	// Both runs emit their first token while neither has finished.
	for name, stream := range map[string]*OutputStream{"run_a": a, "run_b": b} {
		ev, ok := stream.Next(ctx)
		if !ok || ev.Token != "first:"+name {
			t.Fatalf("stream %s first event = %+v, ok = %v", name, ev, ok)
		}
	}
	close(release)

	for name, stream := range map[string]*OutputStream{"run_a": a, "run_b": b} {
		ev, ok := stream.Next(ctx)
		if !ok || ev.Token != "second:"+name {
			t.Errorf("stream %s second event = %+v, ok = %v", name, ev, ok)
		}
		if _, ok := stream.Next(ctx); ok {
			t.Errorf("stream %s did not end", name)
		}
	}
}

func TestSchedulerSurvivesPanickingRun(t *testing.T) {
	execute := func(_ context.Context, run *models.Run, stream *OutputStream) {
		if run.ID == "run_bad" {
			panic("executor bug")
		}
		stream.Finish(nil)
	}

	s := New(execute, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Submit(&models.Run{ID: "run_bad"})
	bad := waitStream(t, s, "run_bad")
	if _, ok := bad.Next(ctx); ok {
		t.Error("panicking run produced events")
	}

	// The loop keeps dispatching after the panic.
	s.Submit(&models.Run{ID: "run_good"})
	good := waitStream(t, s, "run_good")
	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	if ev, ok := good.Next(waitCtx); ok || !ev.End {
		t.Errorf("run after panic: ev = %+v, ok = %v", ev, ok)
	}
}

func TestSchedulerStreamLookupAndRelease(t *testing.T) {
	block := make(chan struct{})
	execute := func(_ context.Context, _ *models.Run, stream *OutputStream) {
		<-block
		stream.Finish(nil)
	}
	s := New(execute, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Submit(&models.Run{ID: "run_1"})
	waitStream(t, s, "run_1")
	if _, ok := s.Stream("run_other"); ok {
		t.Error("Stream(run_other) found")
	}

	s.Release("run_1")
	if _, ok := s.Stream("run_1"); ok {
		t.Error("Stream(run_1) still registered after Release")
	}
	close(block)
}

func TestSchedulerSweepsExpiredStreams(t *testing.T) {
	execute := func(_ context.Context, _ *models.Run, stream *OutputStream) {
		stream.Finish(nil)
	}
	s := New(execute, Options{
		StreamTTL:     time.Millisecond,
		SweepInterval: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	s.Submit(&models.Run{ID: "run_old"})
	waitStream(t, s, "run_old")
	time.Sleep(20 * time.Millisecond)

	// The sweep runs on dispatch; submitting another run triggers it.
	s.Submit(&models.Run{ID: "run_new"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := s.Stream("run_old"); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("expired stream never swept")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
