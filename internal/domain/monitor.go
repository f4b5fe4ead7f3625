package domain

import "time"

// CheckpointSpec is a scheduled post-entry re-validation point.
type CheckpointSpec struct {
	Offset       time.Duration // time after entry
	MaxDropPct   float64       // max tolerated liquidity drop, percent
	MaxImpactPct float64       // max tolerated sell price impact, percent
}

// CheckpointResult is the outcome of one checkpoint.
type CheckpointResult struct {
	SessionID        string
	Mint             string
	Index            int
	Offset           time.Duration
	Passed           bool
	Reason           string
	RouteAvailable   bool
	PriceImpactPct   float64
	LiquidityUSD     float64
	LiquidityDropPct float64
	MaxDropPct       float64
	MaxImpactPct     float64
	CheckedAt        time.Time
}

// EmergencyExitEvent is raised by the monitor on the first failing checkpoint.
type EmergencyExitEvent struct {
	SessionID   string
	Mint        string
	Checkpoint  CheckpointResult
	TriggeredAt time.Time
}
