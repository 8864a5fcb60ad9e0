// Package pg connects the service to PostgreSQL through pgx/v5 and applies
// goose migrations.
//
//	cfg := config.MustLoad[pg.Config]()
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, pgstore.Migrations, cfg, log); err != nil {
//	    return err
//	}
//
// Healthcheck returns a probe suitable for the /health endpoint, and the Is*
// helpers classify driver errors without leaking pgx types to callers.
package pg
