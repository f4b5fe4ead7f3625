package monitor

import (
	"errors"
	"fmt"
	"time"

	"solana-entry-gate/internal/domain"
)

// DefaultSchedule is the +15s/+30s/+60s checkpoint ladder, strictest first.
func DefaultSchedule() []domain.CheckpointSpec {
	return []domain.CheckpointSpec{
		{Offset: 15 * time.Second, MaxDropPct: 20, MaxImpactPct: 15},
		{Offset: 30 * time.Second, MaxDropPct: 30, MaxImpactPct: 25},
		{Offset: 60 * time.Second, MaxDropPct: 40, MaxImpactPct: 35},
	}
}

// ValidateSchedule requires increasing offsets and thresholds that never get
// stricter as time since entry grows.
func ValidateSchedule(cps []domain.CheckpointSpec) error {
	if len(cps) == 0 {
		return errors.New("monitor: empty checkpoint schedule")
	}
	for i, cp := range cps {
		if cp.Offset <= 0 {
			return fmt.Errorf("monitor: checkpoint %d: offset must be positive", i)
		}
		if cp.MaxDropPct <= 0 || cp.MaxImpactPct <= 0 {
			return fmt.Errorf("monitor: checkpoint %d: thresholds must be positive", i)
		}
		if i == 0 {
			continue
		}
		prev := cps[i-1]
		if cp.Offset <= prev.Offset {
			return fmt.Errorf("monitor: checkpoint %d: offset %s not after %s", i, cp.Offset, prev.Offset)
		}
		if cp.MaxDropPct < prev.MaxDropPct || cp.MaxImpactPct < prev.MaxImpactPct {
			return fmt.Errorf("monitor: checkpoint %d: stricter than checkpoint %d", i, i-1)
		}
	}
	return nil
}

func label(offset time.Duration) string {
	return "+" + offset.String()
}
