// Package async provides safe concurrent execution primitives for background tasks.
//
// # Key Functions
//
// SafeGo: Execute a fire-and-forget function in a goroutine with panic
// recovery, a timeout and structured error logging.
//
//	async.SafeGo(ctx, logger, 10*time.Second, "verification email", func(ctx context.Context) error {
//		return mailer.Send(ctx, msg)
//	})
//
// Periodic loops pass a zero timeout and run until ctx is cancelled:
//
//	async.SafeGoNoError(ctx, logger, 0, "db_stats", func(ctx context.Context) {
//		recordDBStats(ctx, db, metrics)
//	})
//
// Runner: Tasks that outlive the request and must be drained on shutdown.
//
//	runner := async.NewRunner(logger, metrics, time.Minute)
//	runner.Go(r.Context(), "pot blob cleanup", func(ctx context.Context) error {
//		return cleaner.DeleteURLs(ctx, urls)
//	})
//	shutdown.RegisterShutdownFunc("background tasks", runner.Drain)
//
// Neither retries failed tasks.
package async
