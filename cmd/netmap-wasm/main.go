//go:build js && wasm

// Command netmap-wasm is the map page controller, built with GOOS=js GOARCH=wasm and
// served from the static directory of cmd/netmap.
package main

import (
	"context"
	"os"
	"syscall/js"
	"time"

	"github.com/rs/zerolog"

	"netmap/internal/viewer"
	"netmap/internal/viewer/dom"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, NoColor: true}).
		With().Timestamp().Str("service", "netmap-wasm").Logger()

	global := js.Global()
	origin := global.Get("location").Get("origin").String()

	page, err := dom.Load(global.Get("document"))
	if err != nil {
		logger.Error().Err(err).Msg("map page not recognised")
		return
	}

	ctx := context.Background()
	transport := viewer.NewHTTPTransport(logger, viewer.TransportOptions{BaseURL: origin})
	render := viewer.NewSynchronizer(logger, page.Canvas(), viewer.SynchronizerOptions{BaseURL: origin})
	ctrl := viewer.New(logger, viewer.Options{
		View:      page.InitialView(),
		Panel:     page.Panel(),
		Transport: transport,
		Render:    render,
	})
	page.Bind(ctx, logger, ctrl, transport)

	logger.Info().Str("origin", origin).Msg("map controller ready")
	select {}
}
