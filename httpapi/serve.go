package httpapi

import (
	"context"

	"github.com/clubmaster/billing/pkg/httpserver"
)

// Serve assembles the billing router and runs it on an httpserver.Server
// until ctx is cancelled. The router's logger doubles as the server's
// lifecycle logger unless srvOpts override it.
func Serve(ctx context.Context, cfg httpserver.Config, opts RouterOptions, srvOpts ...httpserver.Option) error {
	base := []httpserver.Option{httpserver.WithLogger(opts.Logger)}
	srv := httpserver.NewFromConfig(cfg, append(base, srvOpts...)...)
	return srv.Run(ctx, Router(opts))
}
