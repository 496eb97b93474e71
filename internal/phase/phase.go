// Package phase maps a single packet's instantaneous readings to a flight
// phase. Classification is stateless; the same packet always yields the same
// phase regardless of flight lifecycle state.
package phase

import (
	"github.com/saviobatista/telemetry-server/internal/types"
)

// Thresholds for phase classification. These are deliberately distinct from
// the flight start/end thresholds used by the lifecycle tracker.
const (
	groundAltitude  = 2.0   // below this the craft is considered on the ground
	cruiseAltitude  = 140.0 // at or above this, level flight is cruise
	takeoffSpeed    = 3.0   // ground speed marking a takeoff roll
	climbRate       = 0.8   // minimum vertical speed to count as climbing
	descentRate     = -0.8  // vertical speed below this counts as descending
	landingAltitude = 20.0  // descending below this is a landing
)

// Classify returns the flight phase for a packet. The checks are ordered by
// priority; earlier rules win where conditions overlap.
func Classify(p *types.TelemetryPacket) types.FlightPhase {
	onGround := p.AltitudeBaro < groundAltitude
	moving := p.GroundSpeed >= takeoffSpeed
	climbing := p.VerticalSpeed > climbRate
	descending := p.VerticalSpeed < descentRate

	switch {
	case onGround && !moving:
		return types.PhaseOnGround
	case onGround && moving:
		return types.PhaseTakingOff
	case p.AltitudeBaro < landingAltitude && descending:
		return types.PhaseLanding
	case climbing && p.AltitudeBaro < cruiseAltitude:
		return types.PhaseAscent
	case p.AltitudeBaro >= cruiseAltitude && !climbing && !descending:
		return types.PhaseCruise
	case descending && p.AltitudeBaro > landingAltitude:
		return types.PhaseDescent
	case climbing:
		return types.PhaseAscent
	case onGround:
		return types.PhaseOnGround
	}
	// Airborne but not clearly in any phase.
	return types.PhaseCruise
}
