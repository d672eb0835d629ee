package executor

// DiscardReason says why a result never reached the consumer.
type DiscardReason string

const (
	// DiscardFailed marks a result carrying the failure marker.
	DiscardFailed DiscardReason = "failed"
	// DiscardStale marks a result from a superseded session.
	DiscardStale DiscardReason = "stale"
	// DiscardFlushed marks a delivered result removed from the shared queue by Reset.
	DiscardFlushed DiscardReason = "flushed"
)

// Observer receives executor events. Implementations must be safe for
// concurrent use; methods are called from collector goroutines.
type Observer interface {
	JobQueued()
	ResultDelivered()
	ResultDiscarded(reason DiscardReason, n int)
	SessionReset(session int64)
	WorkerStarted(info WorkerInfo)
}

type nopObserver struct{}

func (nopObserver) JobQueued()                             {}
func (nopObserver) ResultDelivered()                       {}
func (nopObserver) ResultDiscarded(_ DiscardReason, _ int) {}
func (nopObserver) SessionReset(_ int64)                   {}
func (nopObserver) WorkerStarted(_ WorkerInfo)             {}
