// Package async provides the two goroutine shapes the notification engine
// needs: Future, for concurrent work whose result is awaited (for example the
// primary and backup channel publishes), and Group, for fire-and-forget tasks
// that outlive the request that started them but must be drained on shutdown.
//
//	var tasks async.Group
//	tasks.Go(ctx, func(ctx context.Context) {
//	    dispatcher.SendToUser(ctx, userID, env)
//	})
//	...
//	_ = tasks.Close(shutdownCtx)
package async
