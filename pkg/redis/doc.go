// Package redis connects the billing service to its Redis instance, which
// backs the read-side view cache. It parses a redis:// URL from the
// environment, retries the initial dial, and exposes a health probe.
//
//	var cfg redis.Config
//	if err := env.Parse(&cfg); err != nil {
//	    panic(err)
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    panic(err)
//	}
//	defer client.Close()
package redis
