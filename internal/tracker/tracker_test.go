package tracker

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/saviobatista/telemetry-server/internal/stats"
	"github.com/saviobatista/telemetry-server/internal/store"
	"github.com/saviobatista/telemetry-server/internal/types"
)

func newTestTracker(t *testing.T) (*Tracker, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	tr, err := New(s, logger, stats.New())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return tr, s
}

// groundPacket is below the start thresholds, airbornePacket above them.
func groundPacket(ts uint64) *types.TelemetryPacket {
	return &types.TelemetryPacket{
		Latitude:    -23.5500,
		Longitude:   -46.6300,
		AltitudeGPS: 0.5,
		GroundSpeed: 0.2,
		Timestamp:   ts,
	}
}

func airbornePacket(ts uint64) *types.TelemetryPacket {
	return &types.TelemetryPacket{
		Latitude:       -23.5500,
		Longitude:      -46.6300,
		AltitudeGPS:    30.0,
		AltitudeBaro:   30.0,
		GroundSpeed:    10.0,
		VerticalSpeed:  1.5,
		BatteryVoltage: 12.4,
		Timestamp:      ts,
	}
}

func TestProcess_IdlePacketsNotPersisted(t *testing.T) {
	tr, s := newTestTracker(t)

	for ts := uint64(1000); ts <= 5000; ts += 1000 {
		res := tr.Process(groundPacket(ts))
		if res.FlightID != "" {
			t.Fatalf("Process() assigned flight %q to a grounded packet", res.FlightID)
		}
		if res.Phase != types.PhaseOnGround {
			t.Errorf("Phase = %v, want On Ground", res.Phase)
		}
	}

	flights, err := s.ListFlights()
	if err != nil {
		t.Fatalf("ListFlights() failed: %v", err)
	}
	if len(flights) != 0 {
		t.Errorf("found %d flights after grounded packets, want 0", len(flights))
	}
}

func TestProcess_StartsExactlyOneFlight(t *testing.T) {
	tr, s := newTestTracker(t)

	tr.Process(groundPacket(1000))

	var flightID string
	for ts := uint64(2000); ts <= 10000; ts += 1000 {
		res := tr.Process(airbornePacket(ts))
		if res.FlightID == "" {
			t.Fatal("Process() did not assign a flight to an airborne packet")
		}
		if flightID == "" {
			flightID = res.FlightID
		} else if res.FlightID != flightID {
			t.Fatalf("flight id changed mid-flight: %s then %s", flightID, res.FlightID)
		}
	}

	if flightID != "flight_001" {
		t.Errorf("flight id = %s, want flight_001", flightID)
	}
	if got := tr.CurrentFlightID(); got != flightID {
		t.Errorf("CurrentFlightID() = %s, want %s", got, flightID)
	}

	flights, err := s.ListFlights()
	if err != nil {
		t.Fatalf("ListFlights() failed: %v", err)
	}
	if len(flights) != 1 {
		t.Fatalf("found %d flights, want 1", len(flights))
	}
	if flights[0].PacketCount != 9 {
		t.Errorf("PacketCount = %d, want 9", flights[0].PacketCount)
	}
	if flights[0].StartTime != 2000 {
		t.Errorf("StartTime = %d, want 2000", flights[0].StartTime)
	}
}

func TestProcess_NormalLanding(t *testing.T) {
	tr, s := newTestTracker(t)

	// Airborne for ten seconds.
	for ts := uint64(1000); ts <= 10000; ts += 1000 {
		tr.Process(airbornePacket(ts))
	}

	// Grounded run: the landing confirms once the run spans 5000 ms.
	for ts := uint64(11000); ts <= 16000; ts += 1000 {
		tr.Process(groundPacket(ts))
	}

	if got := tr.CurrentFlightID(); got != "" {
		t.Fatalf("CurrentFlightID() = %q after landing, want idle", got)
	}

	meta, err := s.GetFlight("flight_001")
	if err != nil {
		t.Fatalf("GetFlight() failed: %v", err)
	}
	if !meta.EndedNormally {
		t.Error("EndedNormally = false, want true")
	}
	if meta.CurrentStatus != "Landed" {
		t.Errorf("CurrentStatus = %q, want Landed", meta.CurrentStatus)
	}
	if meta.EndTime != 16000 {
		t.Errorf("EndTime = %d, want 16000", meta.EndTime)
	}
}

func TestProcess_BriefTouchdownDoesNotEndFlight(t *testing.T) {
	tr, _ := newTestTracker(t)

	for ts := uint64(1000); ts <= 5000; ts += 1000 {
		tr.Process(airbornePacket(ts))
	}

	// Grounded for 3 s, then airborne again before the 5 s window elapses.
	tr.Process(groundPacket(6000))
	tr.Process(groundPacket(9000))
	tr.Process(airbornePacket(10000))

	if got := tr.CurrentFlightID(); got != "flight_001" {
		t.Errorf("CurrentFlightID() = %q, want flight_001 still active", got)
	}
}

func TestCheckTimeout(t *testing.T) {
	tr, s := newTestTracker(t)

	tr.Process(airbornePacket(1000))
	if tr.CurrentFlightID() == "" {
		t.Fatal("expected an active flight")
	}

	// Well within the timeout: nothing happens.
	tr.CheckTimeout(time.Now().Add(30 * time.Second))
	if tr.CurrentFlightID() == "" {
		t.Fatal("CheckTimeout() ended flight before the timeout elapsed")
	}

	tr.CheckTimeout(time.Now().Add(61 * time.Second))
	if got := tr.CurrentFlightID(); got != "" {
		t.Fatalf("CurrentFlightID() = %q after timeout, want idle", got)
	}

	meta, err := s.GetFlight("flight_001")
	if err != nil {
		t.Fatalf("GetFlight() failed: %v", err)
	}
	if meta.EndedNormally {
		t.Error("EndedNormally = true after timeout, want false")
	}
	if meta.CurrentStatus != "Landed" {
		t.Errorf("CurrentStatus = %q, want Landed", meta.CurrentStatus)
	}
}

func TestCheckTimeout_Idle(t *testing.T) {
	tr, _ := newTestTracker(t)

	// Must not panic or create anything while idle.
	tr.CheckTimeout(time.Now().Add(2 * time.Minute))
	if got := tr.CurrentFlightID(); got != "" {
		t.Errorf("CurrentFlightID() = %q, want idle", got)
	}
}

func TestProcess_AccumulatesDistance(t *testing.T) {
	tr, s := newTestTracker(t)

	p1 := airbornePacket(1000)
	p1.Latitude, p1.Longitude = -23.5505, -46.6333
	tr.Process(p1)

	// Roughly 7.9 km northeast.
	p2 := airbornePacket(2000)
	p2.Latitude, p2.Longitude = -23.5000, -46.5800
	tr.Process(p2)

	meta, err := s.GetFlight("flight_001")
	if err != nil {
		t.Fatalf("GetFlight() failed: %v", err)
	}
	if meta.DistanceKM < 7.0 || meta.DistanceKM > 9.0 {
		t.Errorf("DistanceKM = %f, want roughly 7.9", meta.DistanceKM)
	}
	if meta.LastLat != -23.5000 || meta.LastLon != -46.5800 {
		t.Errorf("last fix = (%f, %f), want (-23.5, -46.58)", meta.LastLat, meta.LastLon)
	}
}

func TestProcess_TracksAggregates(t *testing.T) {
	tr, s := newTestTracker(t)

	p1 := airbornePacket(1000)
	p1.AltitudeGPS = 30.0
	p1.BatteryVoltage = 12.4
	tr.Process(p1)

	p2 := airbornePacket(2000)
	p2.AltitudeGPS = 120.0
	p2.BatteryVoltage = 11.9
	tr.Process(p2)

	p3 := airbornePacket(3000)
	p3.AltitudeGPS = 80.0
	p3.BatteryVoltage = 12.1
	tr.Process(p3)

	meta, err := s.GetFlight("flight_001")
	if err != nil {
		t.Fatalf("GetFlight() failed: %v", err)
	}
	if meta.MaxAltitude != 120.0 {
		t.Errorf("MaxAltitude = %f, want 120", meta.MaxAltitude)
	}
	if meta.MinBattery != 11.9 {
		t.Errorf("MinBattery = %f, want 11.9", meta.MinBattery)
	}
	if meta.DurationSecs != 2 {
		t.Errorf("DurationSecs = %d, want 2", meta.DurationSecs)
	}
}

func TestNew_ResumesFlightCounter(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.UpsertMetadata(&types.FlightMetadata{FlightID: "flight_004", StartTime: 1}); err != nil {
		t.Fatalf("UpsertMetadata() failed: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	tr, err := New(s, logger, stats.New())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	res := tr.Process(airbornePacket(1000))
	if res.FlightID != "flight_005" {
		t.Errorf("minted flight id = %s, want flight_005", res.FlightID)
	}
}

func TestProcess_MetadataSnapshotIsolated(t *testing.T) {
	tr, _ := newTestTracker(t)

	res := tr.Process(airbornePacket(1000))
	if res.Meta == nil {
		t.Fatal("Meta is nil for an active flight")
	}
	res.Meta.PacketCount = 9999

	res2 := tr.Process(airbornePacket(2000))
	if res2.Meta.PacketCount != 2 {
		t.Errorf("PacketCount = %d, want 2 (caller mutation leaked)", res2.Meta.PacketCount)
	}
}
