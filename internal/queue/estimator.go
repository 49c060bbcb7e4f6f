package queue

import (
	"time"

	"github.com/shelfdrop/shelfdrop-cli/internal/constants"
)

// estimator converts raw byte-uploaded samples into a smoothed throughput
// and ETA. Only the most recent sample is retained (a sliding window of
// two: the stored one and the incoming one), never a history.
type estimator struct {
	seeded     bool
	lastBytes  int64
	lastSample time.Time
	speed      float64 // bytes/sec, EMA smoothed
}

// sample feeds one (bytesUploaded, now) observation and returns the updated
// speed and ETA. The first sample only seeds state. Samples arriving within
// MinSampleInterval of the stored one are discarded without touching state,
// which throttles display updates independent of how often the network
// layer reports. ETA is negative while speed is still zero (undefined).
func (e *estimator) sample(bytesUploaded, totalBytes int64, now time.Time) (speed, etaSeconds float64, updated bool) {
	if !e.seeded {
		e.seeded = true
		e.lastBytes = bytesUploaded
		e.lastSample = now
		e.speed = 0
		return 0, -1, false
	}

	elapsed := now.Sub(e.lastSample)
	if elapsed < constants.MinSampleInterval {
		return e.speed, e.eta(bytesUploaded, totalBytes), false
	}

	delta := bytesUploaded - e.lastBytes
	if delta > 0 {
		instant := float64(delta) / elapsed.Seconds()
		if e.speed == 0 {
			e.speed = instant
		} else {
			alpha := constants.SpeedSmoothingAlpha
			e.speed = alpha*instant + (1-alpha)*e.speed
		}
	}

	e.lastBytes = bytesUploaded
	e.lastSample = now

	return e.speed, e.eta(bytesUploaded, totalBytes), true
}

func (e *estimator) eta(bytesUploaded, totalBytes int64) float64 {
	if e.speed <= 0 {
		return -1
	}
	remaining := totalBytes - bytesUploaded
	if remaining <= 0 {
		return 0
	}
	return float64(remaining) / e.speed
}

// reset discards all running state. Called when a strategy switch starts a
// new transfer session; counters never carry across strategies.
func (e *estimator) reset() {
	*e = estimator{}
}
