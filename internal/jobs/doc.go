// Package jobs implements background jobs for the negotiator API.
//
// Jobs run on their own ticker, independently of HTTP request handling:
//
//   - CheckpointPruner: deletes threads idle longer than CHECKPOINT_RETENTION
//   - KeepAlive: pings PUBLIC_URL/health every KEEPALIVE_INTERVAL
//
// Every job has the same lifecycle:
//
//	pruner := jobs.NewCheckpointPruner(jobs.CheckpointPrunerConfig{Store: repo})
//	pruner.Start()
//	defer pruner.Stop()
//
// RunOnce performs a single pass synchronously, for tests and manual
// triggers. Jobs log errors and keep running.
package jobs
