package loadgen

import "time"

// Submission outcomes.
const (
	resultSuccess   = "success"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
)

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettleTimeout = 2 * time.Minute
	SettlePollInterval   = 200 * time.Millisecond
	PercentageMultiplier = 100
	progressInterval     = time.Second
	maxResponseBytes     = 1 << 20
)
