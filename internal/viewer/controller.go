// Package viewer is the controller behind the topology map page: it tracks which map and
// node are selected, turns nudges and typed coordinates into position updates, persists
// them, and refreshes the diagram through a double-buffered Synchronizer.
//
// Nothing here touches the document directly; the page is reached through the Panel and
// Canvas interfaces so the controller can be driven without a browser.
package viewer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"netmap/internal/mapview"
)

// ErrNoSelection is returned by edits issued before a node was selected.
var ErrNoSelection = errors.New("no node selected")

// DefaultPosition is shown for a node without a usable seed position.
const DefaultPosition = "0,0"

// Panel is the edit-controls container of the page.
type Panel interface {
	Hide()
	Show()
	// Position returns the text currently in the position field.
	Position() string
	// SetPosition replaces the text of the position field.
	SetPosition(text string)
	// SetStatus shows err to the operator; nil clears the indicator.
	SetStatus(err error)
}

// Option is a selectable router or network together with its seed position.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Pos   string `json:"pos,omitempty"`
}

// Selection is the node being edited and the contents of the position field.
type Selection struct {
	Node string
	Text string
}

// Direction is a nudge button. Coordinates are diagram coordinates, so Up increases y.
type Direction int

const (
	Left Direction = iota
	Up
	Down
	Right
)

// Delta returns the position change of one nudge in d.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case Left:
		return -1, 0
	case Up:
		return 0, 1
	case Down:
		return 0, -1
	case Right:
		return 1, 0
	default:
		return 0, 0
	}
}

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Up:
		return "up"
	case Down:
		return "down"
	case Right:
		return "right"
	default:
		return "unknown"
	}
}

// IsConfirmKey reports whether a key press in the position field submits it.
func IsConfirmKey(key string) bool {
	return key == "Enter"
}

type Options struct {
	View      mapview.MapView
	Panel     Panel
	Transport Transport
	Render    *Synchronizer
}

type Controller struct {
	log       zerolog.Logger
	panel     Panel
	transport Transport
	render    *Synchronizer

	mu   sync.Mutex
	view mapview.MapView
	sel  Selection

	// editMu serializes edits behind the in-flight position update.
	editMu sync.Mutex
}

func New(log zerolog.Logger, opts Options) *Controller {
	return &Controller{
		log:       log,
		panel:     opts.Panel,
		transport: opts.Transport,
		render:    opts.Render,
		view:      opts.View,
	}
}

// View returns the map view currently displayed.
func (c *Controller) View() mapview.MapView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Selection returns the current selection and whether a node is selected.
func (c *Controller) Selection() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel, c.sel.Node != ""
}

// SelectNode handles a change of the router or network selector. A missing or malformed
// seed position falls back to DefaultPosition.
func (c *Controller) SelectNode(opt Option) {
	text := strings.TrimSpace(opt.Pos)
	if text == "" {
		text = DefaultPosition
	} else if _, err := mapview.ParsePosition(text); err != nil {
		c.log.Debug().Err(err).Str("node", opt.ID).Msg("ignoring malformed seed position")
		text = DefaultPosition
	}

	c.mu.Lock()
	c.sel = Selection{Node: opt.ID, Text: text}
	c.mu.Unlock()

	c.log.Debug().Str("node", opt.ID).Str("pos", text).Msg("node selected")

	// Hidden while the field is refilled so the panel does not jump.
	c.panel.Hide()
	c.panel.SetPosition(text)
	c.panel.SetStatus(nil)
	c.panel.Show()
}

// SelectLayout switches the layout algorithm and refreshes the diagram.
func (c *Controller) SelectLayout(ctx context.Context, layout string) error {
	c.mu.Lock()
	c.view.Layout = layout
	view := c.view
	c.mu.Unlock()

	return c.refresh(ctx, view)
}

// SelectMap switches the displayed map. The selection belongs to the previous map and
// is dropped.
func (c *Controller) SelectMap(ctx context.Context, mapID string) error {
	c.mu.Lock()
	c.view.MapID = mapID
	c.sel = Selection{}
	view := c.view
	c.mu.Unlock()

	c.panel.Hide()
	return c.refresh(ctx, view)
}

// Nudge moves the selected node one unit in d from the text in the position field and
// persists the result.
func (c *Controller) Nudge(ctx context.Context, d Direction) error {
	return c.edit(ctx, func(Selection) (mapview.Position, error) {
		text := c.panel.Position()
		c.mu.Lock()
		c.sel.Text = text
		c.mu.Unlock()
		pos, err := mapview.ParsePosition(text)
		if err != nil {
			return mapview.Position{}, err
		}
		dx, dy := d.Delta()
		return pos.Add(dx, dy), nil
	})
}

// ConfirmTypedPosition persists the text typed into the position field.
func (c *Controller) ConfirmTypedPosition(ctx context.Context, text string) error {
	return c.edit(ctx, func(Selection) (mapview.Position, error) {
		c.mu.Lock()
		c.sel.Text = text
		c.mu.Unlock()
		return mapview.ParsePosition(text)
	})
}

// Refresh re-renders the current view without any position change.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.refresh(ctx, c.View())
}

func (c *Controller) edit(ctx context.Context, next func(Selection) (mapview.Position, error)) error {
	c.editMu.Lock()

	c.mu.Lock()
	sel := c.sel
	view := c.view
	c.mu.Unlock()

	if sel.Node == "" {
		c.editMu.Unlock()
		return c.fail(ErrNoSelection)
	}

	pos, err := next(sel)
	if err != nil {
		c.editMu.Unlock()
		return c.fail(err)
	}

	text := pos.String()
	c.mu.Lock()
	if c.sel.Node == sel.Node {
		c.sel.Text = text
	}
	c.mu.Unlock()
	c.panel.SetPosition(text)

	c.log.Debug().Str("node", sel.Node).Str("map", view.MapID).Str("pos", text).Msg("submitting position")
	err = c.transport.UpdatePosition(ctx, view, sel.Node, pos)
	c.editMu.Unlock()
	if err != nil {
		return c.fail(err)
	}

	return c.refresh(ctx, c.View())
}

func (c *Controller) refresh(ctx context.Context, view mapview.MapView) error {
	err := c.render.Refresh(ctx, view)
	switch {
	case err == nil:
		c.panel.SetStatus(nil)
		return nil
	case errors.Is(err, ErrSuperseded):
		return nil
	default:
		return c.fail(err)
	}
}

func (c *Controller) fail(err error) error {
	c.log.Warn().Err(err).Msg("map edit failed")
	c.panel.SetStatus(err)
	return err
}
