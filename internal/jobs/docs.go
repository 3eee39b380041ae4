// Package jobs provides scheduled background tasks for the order service.
//
// Jobs are built on github.com/robfig/cron/v3 with second-level schedules.
//
// # Available Jobs
//
// OutboxRelayJob drains the order_outbox table to the broker. It runs on its cron
// schedule and also wakes up on Postgres NOTIFY from the order_outbox channel, so events
// usually leave within milliseconds of the commit. The schedule covers missed
// notifications and retries of failed rows.
//
// # Usage
//
//	relay := jobs.NewOutboxRelayJob(handler, cmd, "*/5 * * * * *", listener, logger)
//	jobManager := jobs.NewJobManager(relay)
//
//	if err := jobManager.StartAll(); err != nil {
//		log.Fatal("Failed to start jobs:", err)
//	}
//	defer jobManager.StopAll()
//
// Runs never overlap: wake-ups that arrive during a run collapse into one follow-up run.
package jobs
