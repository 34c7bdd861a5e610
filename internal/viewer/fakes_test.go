package viewer

import (
	"context"
	"sync"
	"testing"
	"time"

	"netmap/internal/mapview"
)

type fakeElement struct {
	src     string
	loaded  chan error
	visible bool
}

type fakeCanvas struct {
	mu       sync.Mutex
	attached []*fakeElement
	current  *fakeElement
	staged   chan *fakeElement
	autoLoad bool
}

func newFakeCanvas() *fakeCanvas {
	return &fakeCanvas{staged: make(chan *fakeElement, 16)}
}

// withDisplayed puts an already promoted element on the canvas.
func (c *fakeCanvas) withDisplayed(src string) *fakeElement {
	el := &fakeElement{src: src, loaded: make(chan error, 1), visible: true}
	c.mu.Lock()
	c.attached = append(c.attached, el)
	c.current = el
	c.mu.Unlock()
	return el
}

func (c *fakeCanvas) Stage(src string) (Element, <-chan error) {
	el := &fakeElement{src: src, loaded: make(chan error, 1)}
	c.mu.Lock()
	c.attached = append(c.attached, el)
	auto := c.autoLoad
	c.mu.Unlock()
	if auto {
		el.loaded <- nil
	}
	c.staged <- el
	return el, el.loaded
}

func (c *fakeCanvas) Promote(el Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fe := el.(*fakeElement)
	fe.visible = true
	c.current = fe
}

func (c *fakeCanvas) Remove(el Element) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fe := el.(*fakeElement)
	out := c.attached[:0]
	for _, a := range c.attached {
		if a != fe {
			out = append(out, a)
		}
	}
	c.attached = out
	if c.current == fe {
		c.current = nil
	}
}

func (c *fakeCanvas) Current() Element {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current
}

func (c *fakeCanvas) snapshot() (attached []*fakeElement, current *fakeElement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeElement(nil), c.attached...), c.current
}

func (c *fakeCanvas) visibleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.attached {
		if a.visible {
			n++
		}
	}
	return n
}

func waitStaged(t *testing.T, c *fakeCanvas) *fakeElement {
	t.Helper()
	select {
	case el := <-c.staged:
		return el
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a staged diagram")
		return nil
	}
}

type panelEvent struct {
	Kind string
	Text string
}

type fakePanel struct {
	mu      sync.Mutex
	visible bool
	text    string
	status  error
	events  []panelEvent
}

func (p *fakePanel) Hide() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = false
	p.events = append(p.events, panelEvent{Kind: "hide"})
}

func (p *fakePanel) Show() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = true
	p.events = append(p.events, panelEvent{Kind: "show"})
}

func (p *fakePanel) Position() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

// typeText changes the field the way an operator does, without going through the controller.
func (p *fakePanel) typeText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
}

func (p *fakePanel) SetPosition(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
	p.events = append(p.events, panelEvent{Kind: "pos", Text: text})
}

func (p *fakePanel) SetStatus(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = err
}

func (p *fakePanel) state() (visible bool, text string, status error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible, p.text, p.status
}

type update struct {
	View mapview.MapView
	Node string
	Pos  mapview.Position
}

type fakeTransport struct {
	mu      sync.Mutex
	updates []update
	err     error
}

func (f *fakeTransport) UpdatePosition(ctx context.Context, view mapview.MapView, node string, pos mapview.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, update{View: view, Node: node, Pos: pos})
	return nil
}

func (f *fakeTransport) recorded() []update {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]update(nil), f.updates...)
}
