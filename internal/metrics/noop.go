package metrics

// NoopSource is used when no metric-collection subsystem is wired in;
// stat commands report zeroed snapshots rather than failing.
type NoopSource struct{}

// Metrics implements Source.
func (NoopSource) Metrics() Snapshot { return Snapshot{} }

// Pool implements Source.
func (NoopSource) Pool() PoolSnapshot { return PoolSnapshot{} }

// SetQueueDepths implements Source; the observation is discarded.
func (NoopSource) SetQueueDepths(waiting, sending, collecting, workers int) {}

// SetPool implements Source; the observation is discarded.
func (NoopSource) SetPool(working, alive, pool, capacity int) {}
