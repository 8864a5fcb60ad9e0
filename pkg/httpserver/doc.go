// Package httpserver runs an http.Server with graceful shutdown.
//
// Run blocks until its context is cancelled or the process receives SIGINT or
// SIGTERM. Shutdown then proceeds in three steps, all bounded by the shutdown
// timeout:
//
//  1. drain hooks run, closing long-lived hijacked connections (websockets)
//     and flushing background work;
//  2. http.Server.Shutdown stops the listener and waits for in-flight requests;
//  3. stop hooks run.
//
// Listen failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
//
//	srv := httpserver.NewFromConfig(cfg,
//		httpserver.WithLogger(log),
//		httpserver.WithDrainHook(ws.Close),
//		httpserver.WithDrainHook(notifier.Wait),
//	)
//	if err := srv.Run(ctx, router); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// HealthCheckHandler serves liveness and readiness probes as JSON.
package httpserver
