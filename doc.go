// Package railscron is a distributed cron coordination kernel: it
// guarantees that every registered recurring job fires exactly once per
// scheduled instant across a fleet of nodes, even when nodes are down,
// restarting, or ticking in parallel.
//
// railscron does not run the work itself. Registering a job supplies an
// enqueue callback; the Scheduler invokes it with the firing instant and
// a deterministic idempotency key, and the callback hands the work off
// to whatever queue or worker system the host application uses.
//
// # Quick start
//
//	sched := railscron.New(
//	    railscron.WithLeaseBackend(railslease.NewMemory()),
//	)
//	err := sched.Register("nightly-report", "0 2 * * *", func(ctx context.Context, firing time.Time, idempotencyKey string) error {
//	    return enqueueClient.Enqueue(ctx, "reports.nightly", idempotencyKey)
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := sched.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//	defer sched.Stop(30 * time.Second)
//
// # Architecture
//
// The Scheduler composes small, independently pluggable pieces: a Clock
// (railsclock), a cron expression evaluator (cronexpr), a job registry
// (railsjob), a distributed lease backend (railslease), and an optional
// dispatch audit registry (railsaudit). Every tick enumerates due
// firings per job, derives a lock key (railskey), attempts to acquire
// the lease, and — only on success — invokes the job's callback. The
// lease is never released after a successful dispatch: it is expected
// to expire via TTL, which is what prevents the same firing from being
// re-dispatched within the same lookback window on a later tick.
package railscron
