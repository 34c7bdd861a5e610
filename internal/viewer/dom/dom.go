//go:build js && wasm

// Package dom binds the viewer controller to the map page served by cmd/netmap.
package dom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/rs/zerolog"

	"netmap/internal/mapview"
	"netmap/internal/viewer"
)

// Element ids of the page; they must match the server's root template.
const (
	RouterSelectorID = "router-selector"
	NetSelectorID    = "net-selector"
	LayoutSelectorID = "layout-selector"
	MapSelectorID    = "map-selector"
	ControlsID       = "controls"
	PositionFieldID  = "controls-pos"
	StatusID         = "controls-status"
	ContainerID      = "map-container"
	DiagramID        = "map-svg"
)

var buttons = map[string]viewer.Direction{
	"controls-left":  viewer.Left,
	"controls-up":    viewer.Up,
	"controls-down":  viewer.Down,
	"controls-right": viewer.Right,
}

// Page holds the elements of the map page.
type Page struct {
	doc       js.Value
	routers   js.Value
	nets      js.Value
	layouts   js.Value
	maps      js.Value
	controls  js.Value
	pos       js.Value
	status    js.Value
	container js.Value

	funcs []js.Func
}

// Load looks up every element the controller needs.
func Load(doc js.Value) (*Page, error) {
	p := &Page{doc: doc}
	for id, dst := range map[string]*js.Value{
		RouterSelectorID: &p.routers,
		NetSelectorID:    &p.nets,
		LayoutSelectorID: &p.layouts,
		MapSelectorID:    &p.maps,
		ControlsID:       &p.controls,
		PositionFieldID:  &p.pos,
		StatusID:         &p.status,
		ContainerID:      &p.container,
	} {
		v := doc.Call("getElementById", id)
		if v.IsNull() || v.IsUndefined() {
			return nil, fmt.Errorf("page element %q not found", id)
		}
		*dst = v
	}
	return p, nil
}

// InitialView reads the layout and map chosen when the page was rendered.
func (p *Page) InitialView() mapview.MapView {
	return mapview.MapView{
		Layout: p.layouts.Get("value").String(),
		MapID:  p.maps.Get("value").String(),
	}
}

// Panel returns the edit-controls panel.
func (p *Page) Panel() viewer.Panel {
	return &panel{controls: p.controls, pos: p.pos, status: p.status}
}

// Canvas returns the diagram container.
func (p *Page) Canvas() viewer.Canvas {
	return &canvas{doc: p.doc, container: p.container}
}

// Bind registers the page event handlers. Handlers hand work to goroutines so the
// browser event loop is never blocked on the network.
func (p *Page) Bind(ctx context.Context, log zerolog.Logger, ctrl *viewer.Controller, nodes *viewer.HTTPTransport) {
	onSelect := func(this js.Value, args []js.Value) any {
		sel := args[0].Get("target")
		idx := sel.Get("selectedIndex").Int()
		if idx < 0 {
			return nil
		}
		data := sel.Get("options").Index(idx).Get("dataset")
		ctrl.SelectNode(viewer.Option{ID: jsString(data.Get("id")), Pos: jsString(data.Get("pos"))})
		return nil
	}
	p.listen(p.routers, "change", onSelect)
	p.listen(p.nets, "change", onSelect)

	p.listen(p.layouts, "change", func(this js.Value, args []js.Value) any {
		layout := args[0].Get("target").Get("value").String()
		go func() { _ = ctrl.SelectLayout(ctx, layout) }()
		return nil
	})

	p.listen(p.maps, "change", func(this js.Value, args []js.Value) any {
		mapID := args[0].Get("target").Get("value").String()
		go func() {
			list, err := nodes.ListNodes(ctx, mapID)
			if err != nil {
				log.Warn().Err(err).Str("map", mapID).Msg("failed to list map nodes")
			} else {
				p.fillSelector(p.routers, list.Routers)
				p.fillSelector(p.nets, list.Networks)
			}
			_ = ctrl.SelectMap(ctx, mapID)
		}()
		return nil
	})

	p.listen(p.pos, "keypress", func(this js.Value, args []js.Value) any {
		ev := args[0]
		if !viewer.IsConfirmKey(ev.Get("key").String()) {
			return nil
		}
		ev.Call("preventDefault")
		text := p.pos.Get("value").String()
		go func() { _ = ctrl.ConfirmTypedPosition(ctx, text) }()
		return nil
	})

	for id, dir := range buttons {
		btn := p.doc.Call("getElementById", id)
		if btn.IsNull() || btn.IsUndefined() {
			log.Warn().Str("id", id).Msg("nudge button missing")
			continue
		}
		dir := dir
		p.listen(btn, "click", func(this js.Value, args []js.Value) any {
			go func() { _ = ctrl.Nudge(ctx, dir) }()
			return nil
		})
	}
}

// Release frees the Go callbacks. Call it only when the page goes away.
func (p *Page) Release() {
	for _, f := range p.funcs {
		f.Release()
	}
	p.funcs = nil
}

func (p *Page) listen(target js.Value, event string, fn func(this js.Value, args []js.Value) any) {
	f := js.FuncOf(fn)
	p.funcs = append(p.funcs, f)
	target.Call("addEventListener", event, f)
}

func (p *Page) fillSelector(sel js.Value, opts []viewer.Option) {
	// Keep the leading placeholder option.
	for sel.Get("options").Length() > 1 {
		sel.Call("remove", sel.Get("options").Length()-1)
	}
	for _, o := range opts {
		opt := p.doc.Call("createElement", "option")
		label := o.Label
		if label == "" {
			label = o.ID
		}
		opt.Set("textContent", label)
		opt.Get("dataset").Set("id", o.ID)
		opt.Get("dataset").Set("pos", o.Pos)
		sel.Call("appendChild", opt)
	}
}

func jsString(v js.Value) string {
	if v.IsUndefined() || v.IsNull() {
		return ""
	}
	return v.String()
}

type panel struct {
	controls js.Value
	pos      js.Value
	status   js.Value
}

func (p *panel) Hide() { p.controls.Get("style").Set("display", "none") }

func (p *panel) Show() { p.controls.Get("style").Set("display", "block") }

func (p *panel) Position() string { return p.pos.Get("value").String() }

func (p *panel) SetPosition(text string) {
	p.pos.Set("value", text)
	p.controls.Call("appendChild", p.pos)
}

func (p *panel) SetStatus(err error) {
	if err == nil {
		p.status.Set("textContent", "")
		p.status.Get("classList").Call("remove", "error")
		return
	}
	p.status.Set("textContent", err.Error())
	p.status.Get("classList").Call("add", "error")
}

type element struct {
	v     js.Value
	funcs []js.Func
}

type canvas struct {
	doc       js.Value
	container js.Value
	current   *element
}

var errLoad = errors.New("diagram failed to load")

func (c *canvas) Stage(src string) (viewer.Element, <-chan error) {
	loaded := make(chan error, 1)
	var once sync.Once
	fire := func(err error) { once.Do(func() { loaded <- err }) }

	obj := c.doc.Call("createElement", "object")
	obj.Set("type", "image/svg+xml")
	style := obj.Get("style")
	style.Set("opacity", "0")
	style.Set("zIndex", "-1")
	style.Set("position", "absolute")
	style.Set("left", "-100000px")

	el := &element{v: obj}
	onLoad := js.FuncOf(func(this js.Value, args []js.Value) any {
		fire(nil)
		return nil
	})
	onError := js.FuncOf(func(this js.Value, args []js.Value) any {
		fire(errLoad)
		return nil
	})
	el.funcs = append(el.funcs, onLoad, onError)
	obj.Call("addEventListener", "load", onLoad)
	obj.Call("addEventListener", "error", onError)
	obj.Set("data", src)
	c.container.Call("appendChild", obj)
	return el, loaded
}

func (c *canvas) Promote(el viewer.Element) {
	e := el.(*element)
	style := e.v.Get("style")
	for _, prop := range []string{"opacity", "z-index", "position", "left"} {
		style.Call("removeProperty", prop)
	}
	e.v.Set("id", DiagramID)
	c.current = e
}

func (c *canvas) Remove(el viewer.Element) {
	e := el.(*element)
	e.v.Call("remove")
	for _, f := range e.funcs {
		f.Release()
	}
	e.funcs = nil
	if c.current == e {
		c.current = nil
	}
}

func (c *canvas) Current() viewer.Element {
	if c.current != nil {
		return c.current
	}
	// The first diagram comes with the page.
	v := c.doc.Call("getElementById", DiagramID)
	if v.IsNull() || v.IsUndefined() {
		return nil
	}
	c.current = &element{v: v}
	return c.current
}
