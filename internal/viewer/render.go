package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netmap/internal/mapview"
)

// DefaultRenderTimeout bounds one diagram load when SynchronizerOptions.Timeout is zero.
const DefaultRenderTimeout = 15 * time.Second

var (
	// ErrRenderTimeout is returned when a staged diagram did not finish loading in time.
	// The staged element has been discarded and the previous diagram is still displayed.
	ErrRenderTimeout = errors.New("diagram load timed out")

	// ErrSuperseded is returned by a refresh that was overtaken by a newer one.
	ErrSuperseded = errors.New("diagram refresh superseded")
)

// Element is an opaque handle to a diagram element hosted by a Canvas.
type Element any

// Canvas hosts diagram elements. All methods are called with the synchronizer lock held.
type Canvas interface {
	// Stage attaches a new element loading src, invisible and out of the layout flow.
	// The returned channel receives exactly one value when loading finishes (nil) or
	// fails, and must be buffered so the canvas never blocks on it. It may never fire.
	Stage(src string) (Element, <-chan error)
	// Promote clears the staging styles of el and gives it the displayed identity.
	Promote(el Element)
	// Remove detaches el from the document.
	Remove(el Element)
	// Current returns the element holding the displayed identity, or nil.
	Current() Element
}

// RenderState is the phase of the double-buffered refresh.
type RenderState int

const (
	RenderIdle RenderState = iota
	RenderLoading
	RenderSwapped
)

func (s RenderState) String() string {
	switch s {
	case RenderIdle:
		return "idle"
	case RenderLoading:
		return "loading"
	case RenderSwapped:
		return "swapped"
	default:
		return fmt.Sprintf("RenderState(%d)", int(s))
	}
}

type SynchronizerOptions struct {
	// BaseURL is prefixed to the render path, e.g. "http://host:8080". May be empty
	// when the canvas resolves relative URLs itself.
	BaseURL string
	Timeout time.Duration
	// Observe, if set, is called on every state transition with the lock held.
	Observe func(RenderState)
}

// Synchronizer refreshes the displayed diagram without a blank interval: the new
// rendering loads off-screen and replaces the old one only once fully loaded.
type Synchronizer struct {
	log     zerolog.Logger
	canvas  Canvas
	base    string
	timeout time.Duration
	observe func(RenderState)

	mu     sync.Mutex
	gen    uint64
	state  RenderState
	cancel context.CancelFunc
}

func NewSynchronizer(log zerolog.Logger, canvas Canvas, opts SynchronizerOptions) *Synchronizer {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRenderTimeout
	}
	return &Synchronizer{
		log:     log,
		canvas:  canvas,
		base:    opts.BaseURL,
		timeout: timeout,
		observe: opts.Observe,
	}
}

// State reports the current phase.
func (s *Synchronizer) State() RenderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh loads the rendering for view and swaps it in. It blocks until the swap,
// a load failure, the timeout, ctx cancellation, or a newer Refresh.
func (s *Synchronizer) Refresh(ctx context.Context, view mapview.MapView) error {
	src := s.base + view.RenderPath()

	s.mu.Lock()
	s.gen++
	gen := s.gen
	if s.cancel != nil {
		s.cancel()
	}
	loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	s.cancel = cancel
	el, loaded := s.canvas.Stage(src)
	s.setState(RenderLoading)
	s.mu.Unlock()
	defer cancel()

	s.log.Debug().Uint64("generation", gen).Str("src", src).Msg("diagram staged")

	select {
	case err := <-loaded:
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen {
			s.canvas.Remove(el)
			return ErrSuperseded
		}
		s.cancel = nil
		if err != nil {
			s.canvas.Remove(el)
			s.setState(RenderIdle)
			return fmt.Errorf("load diagram %s: %w", src, err)
		}
		if old := s.canvas.Current(); old != nil {
			s.canvas.Remove(old)
		}
		s.canvas.Promote(el)
		s.setState(RenderSwapped)
		s.log.Debug().Uint64("generation", gen).Msg("diagram swapped")
		s.setState(RenderIdle)
		return nil

	case <-loadCtx.Done():
		s.mu.Lock()
		defer s.mu.Unlock()
		s.canvas.Remove(el)
		if gen != s.gen {
			return ErrSuperseded
		}
		s.cancel = nil
		s.setState(RenderIdle)
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrRenderTimeout
	}
}

func (s *Synchronizer) setState(st RenderState) {
	s.state = st
	if s.observe != nil {
		s.observe(st)
	}
}
