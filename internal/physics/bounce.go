// Package physics models the head motion felt at touchdown.
package physics

import (
	"math"
	"time"
)

// DescentSlope maps descent rate onto shake amplitude: 0.7 m/s of descent
// gives 0.08 m of head travel.
const DescentSlope = 0.7 / 0.08

// HardLandingRate is the descent rate in m/s above which a landing counts
// as firm enough to justify the fast motion commands.
const HardLandingRate = 0.5

// ShakeAmplitude scales a descent rate (m/s, positive down) to a head travel
// amplitude in meters. The result is never negative.
func ShakeAmplitude(descentRate float64) float64 {
	amplitude := descentRate / DescentSlope
	if amplitude < 0 || math.IsNaN(amplitude) {
		return 0
	}
	return amplitude
}

// Damping describes a settling bounce: a cosine at Frequency Hz whose
// envelope decays at Decay per second and is cut off after Window.
type Damping struct {
	Frequency float64
	Decay     float64
	Window    time.Duration
}

// DefaultDamping settles a bounce within 1.5 seconds.
var DefaultDamping = Damping{
	Frequency: 2,
	Decay:     3,
	Window:    1500 * time.Millisecond,
}

// DampedOffset returns the vertical offset (negative is down) of the head
// elapsed time after touchdown. Outside [0, Window) the offset is zero.
func DampedOffset(amplitude float64, elapsed time.Duration, d Damping) float64 {
	if amplitude <= 0 || elapsed < 0 || elapsed >= d.Window {
		return 0
	}
	t := elapsed.Seconds()
	return -amplitude * math.Exp(-d.Decay*t) * math.Cos(2*math.Pi*d.Frequency*t)
}

// BounceTrajectory is the bounce derived from a single touchdown.
type BounceTrajectory struct {
	Amplitude float64
	Start     time.Time
	Damping   Damping
}

// NewBounceTrajectory derives the trajectory for a touchdown at the given
// descent rate.
func NewBounceTrajectory(descentRate float64, start time.Time) BounceTrajectory {
	return BounceTrajectory{
		Amplitude: ShakeAmplitude(descentRate),
		Start:     start,
		Damping:   DefaultDamping,
	}
}

// Offset is the damped offset at time now.
func (b BounceTrajectory) Offset(now time.Time) float64 {
	return DampedOffset(b.Amplitude, now.Sub(b.Start), b.Damping)
}

// Target is the absolute head height at time now for a reference height.
func (b BounceTrajectory) Target(referenceY float64, now time.Time) float64 {
	return referenceY + b.Offset(now)
}

// Settled reports whether the bounce window has passed.
func (b BounceTrajectory) Settled(now time.Time) bool {
	return now.Sub(b.Start) >= b.Damping.Window
}
