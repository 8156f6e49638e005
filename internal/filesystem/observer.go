package filesystem

// RetryEvent is a step in the stale-handle retry loop.
type RetryEvent string

const (
	RetryStale     RetryEvent = "stale"
	RetryAttempt   RetryEvent = "attempt"
	RetrySucceeded RetryEvent = "succeeded"
	RetryExhausted RetryEvent = "exhausted"
)

// RetryEvents lists every event in the order the loop can emit them.
var RetryEvents = []RetryEvent{RetryStale, RetryAttempt, RetrySucceeded, RetryExhausted}

// Observer receives timings for cache and catalog file operations. The
// metrics package provides the Prometheus-backed implementation.
type Observer interface {
	// ObserveOperation is called once per operation with the resolved volume
	// label ("thumbnails", "compressed", "photos", "data") and the total time
	// spent including retries.
	ObserveOperation(volume, operation string, durationSeconds float64, err error)
	ObserveRetry(operation, volume string, event RetryEvent)
}

var defaultObserver Observer

// SetObserver installs the package-wide observer. Passing nil disables it.
func SetObserver(o Observer) {
	defaultObserver = o
}

type discard struct{}

func (discard) ObserveOperation(string, string, float64, error) {}
func (discard) ObserveRetry(string, string, RetryEvent)         {}

func observe() Observer {
	if defaultObserver == nil {
		return discard{}
	}
	return defaultObserver
}
