package engine

// Notifier receives pass-phase callbacks. The engine invokes it; hosts (CLI,
// daemon, dashboard) implement it.
type Notifier interface {
	// PassStarted fires once per pass, before the fetch.
	PassStarted(full bool)
	// PassSucceeded fires after the cursor has been committed.
	PassSucceeded(full bool, stats Stats)
	// PassFailed fires when a pass aborts (configuration or fetch failure).
	PassFailed(full bool, err error)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// PassStarted implements Notifier.
func (NopNotifier) PassStarted(bool) {}

// PassSucceeded implements Notifier.
func (NopNotifier) PassSucceeded(bool, Stats) {}

// PassFailed implements Notifier.
func (NopNotifier) PassFailed(bool, error) {}
