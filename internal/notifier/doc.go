// Package notifier schedules single-shot deferred deliveries.
//
// Each Schedule call arms one runtime timer and returns a Handle that owns
// it. Nothing fires twice and nothing is retried: a delivery that fails is
// logged and reported on the event bus, then forgotten. Deliveries run on
// the service's supervisor, never on the caller's goroutine.
//
// ScheduleMessage is the common case: a text sent to a chat through the
// transport adapter, rate limited and bounded by a send timeout.
package notifier
