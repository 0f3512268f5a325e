package filesystem

import "sync/atomic"

// Observer records filesystem operation metrics. The implementation lives in
// the metrics package, which imports this one.
type Observer interface {
	// ObserveOperation records duration and error status for one call.
	// operation is "read", "stat" or "readdir".
	ObserveOperation(operation string, durationSeconds float64, err error)
	ObserveRetryAttempt(operation string)
	ObserveRetryFailure(operation string)
}

type observerHolder struct {
	Observer
}

var defaultObserver atomic.Pointer[observerHolder]

// SetObserver sets the package-level metrics observer.
func SetObserver(o Observer) {
	if o == nil {
		defaultObserver.Store(nil)
		return
	}
	defaultObserver.Store(&observerHolder{o})
}

// observe returns the package-level observer or nil.
func observe() Observer {
	if h := defaultObserver.Load(); h != nil {
		return h.Observer
	}
	return nil
}
