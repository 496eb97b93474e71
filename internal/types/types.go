package types

// FlightPhase is the instantaneous flight regime derived from a single
// packet's readings. It is recomputed on ingest and on read, never stored.
type FlightPhase int

const (
	PhaseOnGround FlightPhase = iota
	PhaseTakingOff
	PhaseAscent
	PhaseCruise
	PhaseDescent
	PhaseLanding
)

// String returns the display form used in API responses and flight status.
func (p FlightPhase) String() string {
	switch p {
	case PhaseOnGround:
		return "On Ground"
	case PhaseTakingOff:
		return "Taking Off"
	case PhaseAscent:
		return "Ascent"
	case PhaseCruise:
		return "Cruise"
	case PhaseDescent:
		return "Descent"
	case PhaseLanding:
		return "Landing"
	}
	return "Unknown"
}

// TelemetryPacket is one decoded 113-byte telemetry frame. Timestamps are
// monotonic milliseconds from the producer's clock.
type TelemetryPacket struct {
	// GPS
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	AltitudeGPS   float32 `json:"altitude_gps"`
	GroundSpeed   float32 `json:"ground_speed"`
	Heading       float32 `json:"heading"`
	NumSatellites uint8   `json:"num_satellites"`
	GPSFixType    uint8   `json:"gps_fix_type"`

	// Barometer
	AltitudeBaro  float32 `json:"altitude_baro"`
	VerticalSpeed float32 `json:"vertical_speed"`
	Temperature   float32 `json:"temperature"`

	// IMU
	Roll   float32 `json:"roll"`
	Pitch  float32 `json:"pitch"`
	Yaw    float32 `json:"yaw"`
	GyroX  float32 `json:"gyro_x"`
	GyroY  float32 `json:"gyro_y"`
	GyroZ  float32 `json:"gyro_z"`
	AccelX float32 `json:"accel_x"`
	AccelY float32 `json:"accel_y"`
	AccelZ float32 `json:"accel_z"`

	// Power
	BatteryVoltage float32 `json:"battery_voltage"`
	BatteryCurrent float32 `json:"battery_current"`
	BatteryPower   float32 `json:"battery_power"`
	BatteryMAhUsed float32 `json:"battery_mah_used"`

	// Link
	RSSI int16   `json:"rssi"`
	SNR  float32 `json:"snr"`

	// System
	Timestamp      uint64 `json:"timestamp"`
	PacketSequence uint32 `json:"packet_sequence"`
	SystemStatus   uint8  `json:"system_status"`
}

// AnnotatedPacket is a telemetry packet together with its classified phase,
// as served over the REST data endpoint and the live stream.
type AnnotatedPacket struct {
	TelemetryPacket
	FlightPhase string `json:"flight_phase"`
}

// FlightMetadata is the per-flight aggregate record. It is created when a
// flight start is detected, updated on every in-flight packet and finalized
// when the flight ends or times out.
type FlightMetadata struct {
	FlightID      string  `json:"flight_id"`
	StartTime     uint64  `json:"start_time"`
	EndTime       uint64  `json:"end_time"`
	DurationSecs  uint64  `json:"duration_secs"`
	PacketCount   uint64  `json:"packet_count"`
	DistanceKM    float64 `json:"distance_km"`
	FirstLat      float64 `json:"first_lat"`
	FirstLon      float64 `json:"first_lon"`
	LastLat       float64 `json:"last_lat"`
	LastLon       float64 `json:"last_lon"`
	MaxAltitude   float32 `json:"max_altitude"`
	MinBattery    float32 `json:"min_battery"`
	EndedNormally bool    `json:"ended_normally"`
	CurrentStatus string  `json:"current_status"`
}
