// Package httpserver hosts the billing HTTP surface: an http.Server with
// bounded timeouts, graceful shutdown, and probe handlers.
//
// Run opens its own listener, serves the handler, and blocks until the
// context is cancelled, an interrupt or TERM signal arrives, or serving
// fails. In-flight requests drain within the shutdown timeout. Listen and
// serve errors come back wrapped with ErrListen, drain errors with
// ErrShutdown, so hosts can tell them apart with errors.Is.
//
// # Usage
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//	)
//	err := srv.Run(ctx, httpapi.Router(opts))
//
// Addr reports the bound address once Run is listening, which makes
// WithAddr("127.0.0.1:0") usable in tests. httpapi.Serve bundles router
// construction and Run for hosts that want a single call.
package httpserver
