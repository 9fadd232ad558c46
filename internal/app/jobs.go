package app

import (
	"context"
	"time"

	"cartellino/internal/eventbus"
	"cartellino/internal/storage"
	"cartellino/internal/task/scheduler"
	logx "cartellino/pkg/logx"
)

const pruneJobName = "storage.prune"

// pruneJob deletes per-day values older than retainDays days.
func pruneJob(store storage.Store, retainDays int, now func() time.Time, log logx.Logger, bus eventbus.Bus) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		before := now().AddDate(0, 0, -retainDays)
		n, err := store.PruneDaily(ctx, before)
		if err != nil {
			return err
		}
		log.Info("daily values pruned", logx.String("before", storage.DayKey(before)), logx.Int64("removed", n))
		eventbus.Emit(bus, eventbus.TypeStoragePruned, eventbus.StoragePruned{Before: before, Removed: int(n)})
		return nil
	}
}

// registerJobs (re)registers the maintenance schedules. A nil store removes
// the prune job.
func registerJobs(sched *scheduler.Service, store storage.Store, spec string, retain int, now func() time.Time, log logx.Logger, bus eventbus.Bus) error {
	if store == nil {
		sched.Remove(pruneJobName)
		return nil
	}
	_, err := sched.AddCron(pruneJobName, spec, 5*time.Minute, pruneJob(store, retain, now, log, bus))
	return err
}
