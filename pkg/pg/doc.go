// Package pg bootstraps the PostgreSQL layer behind the billing mirror:
// connection pooling via pgx/v5, schema migrations via goose/v3, and a
// health probe for readiness endpoints.
//
// # Usage
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//	    panic(err)
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, slog.Default()); err != nil {
//	    panic(err)
//	}
//
// Connect retries with a linear backoff so a restarting database does not
// kill the service at boot. Migrate bridges the pgx pool to database/sql
// and applies everything under Config.MigrationsPath before the service
// starts serving traffic.
//
// Error classification helpers such as [IsNotFoundError] and
// [IsDuplicateKeyError] unwrap pgx errors for use in storage code.
package pg
