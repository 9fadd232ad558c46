// Package scheduler runs maintenance jobs on cron or interval triggers.
//
// Schedules are keyed by name; adding a schedule with an existing name
// replaces it. Definitions survive Stop and are registered again by Start,
// so jobs may be added before the scheduler runs.
package scheduler
