package render

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

const (
	FormatSVG = "svg"
	FormatPNG = "png"
)

// Error carries what Graphviz printed on stderr.
type Error struct {
	Layout string
	Format string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("graphviz %s/%s: %v", e.Layout, e.Format, e.Err)
	}
	return fmt.Sprintf("graphviz %s/%s: %v: %s", e.Layout, e.Format, e.Err, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Graphviz runs the dot binary once per render.
type Graphviz struct {
	Path string
}

func NewGraphviz(path string) *Graphviz {
	if strings.TrimSpace(path) == "" {
		path = "dot"
	}
	return &Graphviz{Path: path}
}

func (g *Graphviz) Render(ctx context.Context, dot []byte, layout, format string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, g.Path, "-K"+layout, "-T"+format)
	cmd.Stdin = bytes.NewReader(dot)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &Error{Layout: layout, Format: format, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// NegotiateFormat picks SVG when the Accept header asks for it and PNG otherwise.
func NegotiateFormat(accept string) (format, contentType string) {
	for _, part := range strings.Split(accept, ",") {
		typ, _, _ := strings.Cut(part, ";")
		switch strings.ToLower(strings.TrimSpace(typ)) {
		case "image/svg+xml", "application/xml":
			return FormatSVG, "image/svg+xml"
		}
	}
	return FormatPNG, "image/png"
}
