// Package mapview holds the values shared by the viewer controller and the server:
// which map is on screen, node positions in their "x,y" text form, and the escaping
// that lets a node identifier travel as a single URL path segment.
package mapview

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SlashPlaceholder stands in for "/" inside an escaped node identifier.
const SlashPlaceholder = "__SLASH__"

// ErrReservedPlaceholder is returned for identifiers that already contain SlashPlaceholder;
// escaping them could not be reversed.
var ErrReservedPlaceholder = errors.New("node id contains reserved placeholder " + SlashPlaceholder)

// ErrEmptyNodeID is returned when an identifier is required but blank.
var ErrEmptyNodeID = errors.New("node id is empty")

// MapView identifies the layout algorithm and the named map currently displayed.
type MapView struct {
	Layout string
	MapID  string
}

// RenderPath returns the render endpoint for v. Empty fields are omitted so the server
// falls back to its defaults.
func (v MapView) RenderPath() string {
	q := url.Values{}
	if v.Layout != "" {
		q.Set("layout", v.Layout)
	}
	if v.MapID != "" {
		q.Set("map", v.MapID)
	}
	if len(q) == 0 {
		return "/render"
	}
	return "/render?" + q.Encode()
}

// UpdatePath returns the position-persist endpoint for node on v's map. Without a map
// the unscoped form is used and the server applies its default map.
func (v MapView) UpdatePath(node string) (string, error) {
	seg, err := EscapeNodeID(node)
	if err != nil {
		return "", err
	}
	if v.MapID == "" {
		return "/update/" + seg, nil
	}
	return "/update/" + url.PathEscape(v.MapID) + "/" + seg, nil
}

// EscapeNodeID turns id into a path segment: every "/" becomes SlashPlaceholder and the
// result is percent-encoded. Identifiers whose escaped form would not decode back to
// themselves (the placeholder already present, or formed across a "/") are rejected.
func EscapeNodeID(id string) (string, error) {
	if id == "" {
		return "", ErrEmptyNodeID
	}
	if strings.Contains(id, SlashPlaceholder) {
		return "", ErrReservedPlaceholder
	}
	replaced := strings.ReplaceAll(id, "/", SlashPlaceholder)
	if strings.ReplaceAll(replaced, SlashPlaceholder, "/") != id {
		return "", ErrReservedPlaceholder
	}
	return url.PathEscape(replaced), nil
}

// UnescapeNodeID reverses EscapeNodeID.
func UnescapeNodeID(seg string) (string, error) {
	s, err := url.PathUnescape(seg)
	if err != nil {
		return "", fmt.Errorf("unescape node id: %w", err)
	}
	if s == "" {
		return "", ErrEmptyNodeID
	}
	return strings.ReplaceAll(s, SlashPlaceholder, "/"), nil
}

// Position is a node's coordinate on the diagram. Y grows upward, as in graphviz.
type Position struct {
	X int
	Y int
}

// String renders p in the "x,y" form used by the edit field.
func (p Position) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}

// Add returns p moved by (dx, dy).
func (p Position) Add(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// PositionError reports coordinate text that is not "x,y" with integer parts.
type PositionError struct {
	Text   string
	Reason string
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("invalid position %q: %s", e.Text, e.Reason)
}

// ParsePosition parses "x,y". Blanks around each part are ignored; anything else that
// is not an integer is rejected.
func ParsePosition(text string) (Position, error) {
	xs, ys, ok := strings.Cut(text, ",")
	if !ok {
		return Position{}, &PositionError{Text: text, Reason: "expected x,y"}
	}
	if strings.Contains(ys, ",") {
		return Position{}, &PositionError{Text: text, Reason: "too many commas"}
	}
	x, err := ParseCoordinate(xs)
	if err != nil {
		return Position{}, &PositionError{Text: text, Reason: "x: " + err.Error()}
	}
	y, err := ParseCoordinate(ys)
	if err != nil {
		return Position{}, &PositionError{Text: text, Reason: "y: " + err.Error()}
	}
	return Position{X: x, Y: y}, nil
}

// ParseCoordinate parses one coordinate as sent on the wire.
func ParseCoordinate(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			return 0, errors.New("out of range")
		}
		return 0, errors.New("not an integer")
	}
	return n, nil
}
