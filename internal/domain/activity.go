package domain

import "time"

// ActivityRecord is an immutable snapshot of one externally recorded ride,
// as fetched from the fitness platform. The engine never mutates these.
type ActivityRecord struct {
	ExternalID          string
	Type                string
	StartedAt           time.Time
	MovingTimeSec       int
	ElapsedTimeSec      int
	DistanceMeters      float64
	ElevationGainMeters float64
	AverageHeartRate    *float64
	AveragePower        *float64
}

// MatchDurationSec returns the duration used for matching: moving time when
// present and nonzero, otherwise elapsed time.
func (a ActivityRecord) MatchDurationSec() int {
	if a.MovingTimeSec > 0 {
		return a.MovingTimeSec
	}
	return a.ElapsedTimeSec
}
