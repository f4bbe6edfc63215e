//go:build js && wasm

// Browser build of the overlay runtime, loaded into prototype documents by
// /overlay/bootstrap.js:
//
//	GOOS=js GOARCH=wasm go build -o pinup-overlay.wasm ./cmd/pinup-overlay
package main

import (
	"log/slog"
	"os"

	"github.com/hazyhaar/pinup/overlay"
	"github.com/hazyhaar/pinup/overlay/jsdom"
)

func main() {
	// wasm_exec forwards stdout to the browser console.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	surface := jsdom.New()
	rt := overlay.New(overlay.Config{Surface: surface, Logger: logger})

	jsdom.OnReady(surface, func() {
		jsdom.Attach(surface, rt)
		rt.Start()
	})

	// Callbacks run on the JS event loop; main must not return.
	select {}
}
