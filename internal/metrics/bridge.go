package metrics

// BridgeMetrics holds the metrics reported by bridges and their transports.
type BridgeMetrics struct {
	registry *Registry

	MessagesHandled *Counter
	MessagesDropped *Counter
	Unrecognized    *Counter
	Rejected        *Counter
	InitFailures    *Counter
	Posted          *Counter

	ActiveBridges *Gauge
	ReadyBridges  *Gauge

	HandleDuration *Histogram
	InitDuration   *Histogram
}

// NewBridgeMetrics registers the bridge metric set on registry, or on the
// default registry when nil. Registering twice returns the same metrics.
func NewBridgeMetrics(registry *Registry) *BridgeMetrics {
	if registry == nil {
		registry = Default()
	}

	return &BridgeMetrics{
		registry: registry,

		MessagesHandled: registry.RegisterCounter(
			"messages_handled_total",
			"Inbound messages dispatched to an engine",
			nil,
		),
		MessagesDropped: registry.RegisterCounter(
			"messages_dropped_total",
			"Inbound messages dropped because the engine was not ready",
			nil,
		),
		Unrecognized: registry.RegisterCounter(
			"messages_unrecognized_total",
			"Inbound messages with an unknown command prefix",
			nil,
		),
		Rejected: registry.RegisterCounter(
			"messages_rejected_total",
			"Inbound messages that were not strings",
			nil,
		),
		InitFailures: registry.RegisterCounter(
			"engine_init_failures_total",
			"Engine creations that failed",
			nil,
		),
		Posted: registry.RegisterCounter(
			"messages_posted_total",
			"Outbound messages posted to hosts",
			nil,
		),
		ActiveBridges: registry.RegisterGauge(
			"bridges_active",
			"Bridges created and not yet torn down",
			nil,
		),
		ReadyBridges: registry.RegisterGauge(
			"bridges_ready",
			"Bridges with a live engine",
			nil,
		),
		HandleDuration: registry.RegisterHistogram(
			"handle_duration_seconds",
			"Time spent handling one inbound message",
			nil,
			LatencyBuckets,
		),
		InitDuration: registry.RegisterHistogram(
			"engine_init_duration_seconds",
			"Time spent creating and configuring an engine",
			nil,
			DurationBuckets,
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *BridgeMetrics) Registry() *Registry {
	return m.registry
}
