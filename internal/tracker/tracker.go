// Package tracker owns the flight lifecycle state machine: it decides
// whether each incoming packet starts a flight, continues one, or ends one,
// and drives the corresponding storage updates.
//
// Flight start and end gate on GPS altitude. The start/end thresholds (5 m,
// 2 m/s) are deliberately distinct from the phase classifier's ground
// thresholds (2 m, 3 m/s).
package tracker

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/phase"
	"github.com/saviobatista/telemetry-server/internal/stats"
	"github.com/saviobatista/telemetry-server/internal/store"
	"github.com/saviobatista/telemetry-server/internal/types"
)

const (
	// Flight detection thresholds, GPS altitude.
	startAltitude = 5.0
	startSpeed    = 2.0

	// A grounded run must persist this long (packet time) to confirm landing.
	landingConfirmMS = 5000

	// Close an active flight when no packet arrives for this long (wall time).
	FlightTimeout = 60 * time.Second

	earthRadiusKM = 6371.0
)

// Result reports what the tracker did with one packet.
type Result struct {
	Phase types.FlightPhase

	// FlightID is the active flight the packet was stored under, empty if the
	// packet arrived while idle.
	FlightID string

	// Meta is a snapshot of the active flight's metadata after the update,
	// nil while idle.
	Meta *types.FlightMetadata
}

// Tracker is the single lifecycle state machine. The ingest loop is the only
// packet-path caller; the timeout check shares the same mutex so it never
// races a concurrent update.
type Tracker struct {
	st     *store.Store
	logger logrus.FieldLogger
	stats  *stats.Stats

	mu           sync.Mutex
	meta         *types.FlightMetadata // nil while idle
	flightNum    int
	lastSeen     time.Time // wall-clock arrival of the last packet
	landingStart uint64    // packet-time start of the grounded run, 0 if none
	lastFix      [2]float64
	haveFix      bool
	distanceKM   float64
	lastPhase    types.FlightPhase
}

// New creates a tracker, resuming the flight counter from the highest flight
// number already present in the store.
func New(st *store.Store, logger logrus.FieldLogger, s *stats.Stats) (*Tracker, error) {
	n, err := st.MaxFlightNumber()
	if err != nil {
		return nil, fmt.Errorf("failed to recover flight counter: %w", err)
	}

	return &Tracker{
		st:        st,
		logger:    logger,
		stats:     s,
		flightNum: n,
	}, nil
}

// Process feeds one packet through the lifecycle. Storage failures on the
// packet path are logged and swallowed; losing telemetry must not stall
// ingestion.
func (t *Tracker) Process(p *types.TelemetryPacket) Result {
	t.mu.Lock()
	defer t.mu.Unlock()

	ph := phase.Classify(p)
	t.lastSeen = time.Now()

	if t.meta == nil {
		if p.AltitudeGPS > startAltitude && p.GroundSpeed > startSpeed {
			t.startFlight(p, ph)
		} else {
			// Idle and still grounded: classify for the live stream only.
			t.rememberFix(p)
			return Result{Phase: ph}
		}
	}

	t.updateFlight(p, ph)
	t.rememberFix(p)

	if t.isGrounded(p) {
		if t.landingStart == 0 {
			t.landingStart = p.Timestamp
		} else if p.Timestamp-t.landingStart >= landingConfirmMS {
			t.endFlight(p.Timestamp, true)
			return Result{Phase: ph}
		}
	} else {
		t.landingStart = 0
	}

	metaCopy := *t.meta
	return Result{Phase: ph, FlightID: t.meta.FlightID, Meta: &metaCopy}
}

// CheckTimeout closes the active flight if no packet has arrived within
// FlightTimeout. It is driven by an independent ticker, not packet arrival.
func (t *Tracker) CheckTimeout(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta == nil {
		return
	}
	if now.Sub(t.lastSeen) > FlightTimeout {
		t.logger.WithField("flight_id", t.meta.FlightID).Warn("Stream timeout, ending flight")
		t.endFlight(t.meta.EndTime, false)
	}
}

// CurrentFlightID returns the active flight id, empty while idle.
func (t *Tracker) CurrentFlightID() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.meta == nil {
		return ""
	}
	return t.meta.FlightID
}

func (t *Tracker) isGrounded(p *types.TelemetryPacket) bool {
	return p.AltitudeGPS < startAltitude && p.GroundSpeed < startSpeed
}

func (t *Tracker) rememberFix(p *types.TelemetryPacket) {
	t.lastFix = [2]float64{p.Latitude, p.Longitude}
	t.haveFix = true
}

func (t *Tracker) startFlight(p *types.TelemetryPacket, ph types.FlightPhase) {
	t.flightNum++
	flightID := fmt.Sprintf("flight_%03d", t.flightNum)

	t.meta = &types.FlightMetadata{
		FlightID:      flightID,
		StartTime:     p.Timestamp,
		EndTime:       p.Timestamp,
		FirstLat:      p.Latitude,
		FirstLon:      p.Longitude,
		LastLat:       p.Latitude,
		LastLon:       p.Longitude,
		MaxAltitude:   p.AltitudeGPS,
		MinBattery:    p.BatteryVoltage,
		EndedNormally: true,
		CurrentStatus: ph.String(),
	}
	t.distanceKM = 0
	t.landingStart = 0
	t.lastPhase = ph
	// Distance accumulates only between in-flight fixes; the fix that
	// triggered the start is the baseline.
	t.haveFix = false
	t.stats.IncrementStartedFlights()

	t.logger.WithFields(logrus.Fields{
		"flight_id": flightID,
		"altitude":  p.AltitudeGPS,
	}).Info("Flight started")
}

func (t *Tracker) updateFlight(p *types.TelemetryPacket, ph types.FlightPhase) {
	if t.haveFix {
		t.distanceKM += haversineKM(t.lastFix[0], t.lastFix[1], p.Latitude, p.Longitude)
	}

	m := t.meta
	m.EndTime = p.Timestamp
	if p.Timestamp > m.StartTime {
		m.DurationSecs = (p.Timestamp - m.StartTime) / 1000
	}
	m.PacketCount++
	m.DistanceKM = t.distanceKM
	m.LastLat = p.Latitude
	m.LastLon = p.Longitude
	if p.AltitudeGPS > m.MaxAltitude {
		m.MaxAltitude = p.AltitudeGPS
	}
	if p.BatteryVoltage < m.MinBattery {
		m.MinBattery = p.BatteryVoltage
	}
	m.CurrentStatus = ph.String()

	if ph != t.lastPhase {
		t.logger.WithFields(logrus.Fields{
			"flight_id": m.FlightID,
			"phase":     ph.String(),
		}).Info("Phase transition")
		t.lastPhase = ph
	}

	if err := t.st.PutPacket(m.FlightID, p); err != nil {
		t.logger.WithError(err).WithField("flight_id", m.FlightID).Error("Failed to store packet")
	} else {
		t.stats.IncrementStoredPackets()
	}
	if err := t.st.UpsertMetadata(m); err != nil {
		t.logger.WithError(err).WithField("flight_id", m.FlightID).Error("Failed to store flight metadata")
	}
}

// endFlight finalizes the active flight and returns the tracker to idle.
// Caller holds the mutex.
func (t *Tracker) endFlight(endTime uint64, normal bool) {
	m := t.meta

	m.EndTime = endTime
	if endTime > m.StartTime {
		m.DurationSecs = (endTime - m.StartTime) / 1000
	}
	m.EndedNormally = normal
	m.CurrentStatus = "Landed"
	m.DistanceKM = t.distanceKM

	if err := t.st.UpsertMetadata(m); err != nil {
		t.logger.WithError(err).WithField("flight_id", m.FlightID).Error("Failed to finalize flight metadata")
	}
	t.stats.IncrementEndedFlights()

	t.logger.WithFields(logrus.Fields{
		"flight_id":      m.FlightID,
		"ended_normally": normal,
		"packets":        m.PacketCount,
		"distance_km":    m.DistanceKM,
	}).Info("Flight ended")

	t.meta = nil
	t.landingStart = 0
	t.distanceKM = 0
}

// haversineKM is the great-circle distance between two GPS fixes.
func haversineKM(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	lat1R := lat1 * math.Pi / 180
	lat2R := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1R)*math.Cos(lat2R)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKM * c
}
