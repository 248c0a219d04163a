// Package automation schedules classroom rules and fires them.
//
// A Rule pairs a daily or weekly time of day with an appliance.ActionIntent.
// Rules are authored through the Registry, which validates them and keeps
// an in-memory cache over the SQLite Repository.
//
// The Scheduler is clocked by the device-reported time, not the host clock:
//
//	ingestion ──Observe(t)──▶ Scheduler ──tick──▶ Evaluate(t)
//	                                                 │
//	                     for each minute since the last evaluation:
//	                       due rules not yet in the Ledger
//	                                                 │
//	               appliance.Merge(current state, rule.Actions)
//	                                                 │
//	                                                 ▼
//	                                      Dispatcher.Dispatch
//
// When the device clock jumps forward several minutes every skipped minute
// is checked, so a rule scheduled inside the gap still fires once. The
// Ledger keeps a rule from firing twice for the same minute.
//
// # Thread Safety
//
// Registry and Scheduler are safe for concurrent use. Ledger is owned by
// the Scheduler.
//
// # Usage
//
//	repo := automation.NewSQLiteRepository(db)
//	registry := automation.NewRegistry(repo)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	sched := automation.NewScheduler(repo, store, control, log, automation.SchedulerOptions{})
//	sched.Start(ctx)
//	defer sched.Stop()
package automation
