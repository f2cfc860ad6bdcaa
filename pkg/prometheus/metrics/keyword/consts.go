package keyword

const (
	SketchAddsTotalMetricName         = "sketch_adds_total"
	SketchOperationDurationMetricName = "sketch_operation_duration_seconds"
	SketchMemoryUsageMetricName       = "sketch_memory_usage_bytes"
	SketchEstimateMetricName          = "sketch_estimate"
	SketchRelativeErrorMetricName     = "sketch_relative_error"
)

// Operation labels.
const (
	OpAdd      = "add"
	OpAddMany  = "add_many"
	OpEstimate = "estimate"
	OpJaccard  = "jaccard"
)

// Memory path labels.
const (
	MemTotal    = "total"
	MemWrite    = "write"
	MemEstimate = "estimate"
)
