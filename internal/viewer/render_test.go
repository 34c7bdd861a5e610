package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"netmap/internal/mapview"
)

type stateRecorder struct {
	mu     sync.Mutex
	states []RenderState
}

func (r *stateRecorder) observe(s RenderState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) get() []RenderState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RenderState(nil), r.states...)
}

func runRefresh(s *Synchronizer, ctx context.Context, view mapview.MapView) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Refresh(ctx, view) }()
	return done
}

func waitDone(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for refresh to return")
		return nil
	}
}

func TestSynchronizer_KeepsOldDiagramUntilReplacementLoads(t *testing.T) {
	canvas := newFakeCanvas()
	old := canvas.withDisplayed("/render?layout=neato&map=main")
	rec := &stateRecorder{}
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{BaseURL: "http://netmap", Observe: rec.observe})

	done := runRefresh(s, context.Background(), mapview.MapView{Layout: "circo", MapID: "main"})
	staged := waitStaged(t, canvas)

	if staged.src != "http://netmap/render?layout=circo&map=main" {
		t.Fatalf("unexpected staged src %q", staged.src)
	}
	if got := s.State(); got != RenderLoading {
		t.Fatalf("expected loading state, got %v", got)
	}
	attached, current := canvas.snapshot()
	if current != old {
		t.Fatalf("expected previous diagram to stay displayed while loading")
	}
	if len(attached) != 2 {
		t.Fatalf("expected old and staged diagrams attached while loading, got %d", len(attached))
	}
	if staged.visible {
		t.Fatalf("staged diagram must stay invisible while loading")
	}

	staged.loaded <- nil
	if err := waitDone(t, done); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	attached, current = canvas.snapshot()
	if current != staged {
		t.Fatalf("expected staged diagram to be displayed after swap")
	}
	if len(attached) != 1 || attached[0] != staged {
		t.Fatalf("expected only the new diagram attached after swap, got %d", len(attached))
	}
	want := []RenderState{RenderLoading, RenderSwapped, RenderIdle}
	if diff := cmp.Diff(want, rec.get()); diff != "" {
		t.Fatalf("state transitions mismatch (-want +got):\n%s", diff)
	}
}

func TestSynchronizer_FirstRenderWithoutPreviousDiagram(t *testing.T) {
	canvas := newFakeCanvas()
	canvas.autoLoad = true
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{})

	if err := s.Refresh(context.Background(), mapview.MapView{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, current := canvas.snapshot()
	if current == nil || current.src != "/render" {
		t.Fatalf("expected default render to be displayed, got %+v", current)
	}
}

func TestSynchronizer_LoadFailureLeavesPreviousDiagram(t *testing.T) {
	canvas := newFakeCanvas()
	old := canvas.withDisplayed("/render")
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{})

	done := runRefresh(s, context.Background(), mapview.MapView{Layout: "fdp"})
	staged := waitStaged(t, canvas)
	loadErr := errors.New("object failed to load")
	staged.loaded <- loadErr

	err := waitDone(t, done)
	if !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}
	attached, current := canvas.snapshot()
	if current != old {
		t.Fatalf("expected previous diagram to remain displayed")
	}
	if len(attached) != 1 {
		t.Fatalf("expected failed staged diagram to be discarded, got %d attached", len(attached))
	}
	if n := canvas.visibleCount(); n != 1 {
		t.Fatalf("expected exactly one visible diagram, got %d", n)
	}
	if got := s.State(); got != RenderIdle {
		t.Fatalf("expected idle after failure, got %v", got)
	}
}

func TestSynchronizer_TimeoutDiscardsStalledDiagram(t *testing.T) {
	canvas := newFakeCanvas()
	old := canvas.withDisplayed("/render")
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{Timeout: 20 * time.Millisecond})

	err := s.Refresh(context.Background(), mapview.MapView{MapID: "lab"})
	if !errors.Is(err, ErrRenderTimeout) {
		t.Fatalf("expected ErrRenderTimeout, got %v", err)
	}
	attached, current := canvas.snapshot()
	if current != old || len(attached) != 1 {
		t.Fatalf("expected only the previous diagram after timeout, got %d attached", len(attached))
	}
	if got := s.State(); got != RenderIdle {
		t.Fatalf("expected idle after timeout, got %v", got)
	}
}

func TestSynchronizer_NewerRefreshSupersedesInFlight(t *testing.T) {
	canvas := newFakeCanvas()
	old := canvas.withDisplayed("/render")
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{})

	first := runRefresh(s, context.Background(), mapview.MapView{Layout: "neato"})
	firstEl := waitStaged(t, canvas)

	second := runRefresh(s, context.Background(), mapview.MapView{Layout: "circo"})
	secondEl := waitStaged(t, canvas)

	if err := waitDone(t, first); !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected first refresh to be superseded, got %v", err)
	}
	// A late completion of the superseded load must not resurrect it.
	firstEl.loaded <- nil

	attached, current := canvas.snapshot()
	if current != old {
		t.Fatalf("expected previous diagram displayed until the newest load completes")
	}
	for _, a := range attached {
		if a == firstEl {
			t.Fatalf("superseded staged diagram still attached")
		}
	}

	secondEl.loaded <- nil
	if err := waitDone(t, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	attached, current = canvas.snapshot()
	if current != secondEl || len(attached) != 1 {
		t.Fatalf("expected only the newest diagram displayed, got %d attached", len(attached))
	}
}

func TestSynchronizer_ContextCancel(t *testing.T) {
	canvas := newFakeCanvas()
	canvas.withDisplayed("/render")
	s := NewSynchronizer(zerolog.Nop(), canvas, SynchronizerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := runRefresh(s, ctx, mapview.MapView{})
	waitStaged(t, canvas)
	cancel()

	if err := waitDone(t, done); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attached, _ := canvas.snapshot(); len(attached) != 1 {
		t.Fatalf("expected staged diagram discarded on cancel, got %d attached", len(attached))
	}
}

func TestRenderState_String(t *testing.T) {
	got := []string{RenderIdle.String(), RenderLoading.String(), RenderSwapped.String()}
	if diff := cmp.Diff([]string{"idle", "loading", "swapped"}, got); diff != "" {
		t.Fatalf("unexpected names (-want +got):\n%s", diff)
	}
}
