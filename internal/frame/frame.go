// Package frame decodes the fixed-layout binary telemetry frames emitted by
// the upstream producer. A frame is exactly 113 bytes, little-endian, with no
// padding between fields. Decoding performs no range validation; out-of-range
// readings are the concern of downstream consumers.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/saviobatista/telemetry-server/internal/types"
)

// Size is the exact length of a telemetry frame in bytes.
const Size = 113

// ErrMalformedFrame is returned for any buffer whose length is not Size.
var ErrMalformedFrame = errors.New("malformed frame")

// Decode parses a 113-byte frame into a telemetry packet. Any other buffer
// length is rejected outright; there is no partial decode.
func Decode(buf []byte) (types.TelemetryPacket, error) {
	if len(buf) != Size {
		return types.TelemetryPacket{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedFrame, Size, len(buf))
	}

	return types.TelemetryPacket{
		Latitude:      math.Float64frombits(binary.LittleEndian.Uint64(buf[0:])),
		Longitude:     math.Float64frombits(binary.LittleEndian.Uint64(buf[8:])),
		AltitudeGPS:   math.Float32frombits(binary.LittleEndian.Uint32(buf[16:])),
		GroundSpeed:   math.Float32frombits(binary.LittleEndian.Uint32(buf[20:])),
		Heading:       math.Float32frombits(binary.LittleEndian.Uint32(buf[24:])),
		NumSatellites: buf[28],
		GPSFixType:    buf[29],

		AltitudeBaro:  math.Float32frombits(binary.LittleEndian.Uint32(buf[30:])),
		VerticalSpeed: math.Float32frombits(binary.LittleEndian.Uint32(buf[34:])),
		Temperature:   math.Float32frombits(binary.LittleEndian.Uint32(buf[38:])),

		Roll:   math.Float32frombits(binary.LittleEndian.Uint32(buf[42:])),
		Pitch:  math.Float32frombits(binary.LittleEndian.Uint32(buf[46:])),
		Yaw:    math.Float32frombits(binary.LittleEndian.Uint32(buf[50:])),
		GyroX:  math.Float32frombits(binary.LittleEndian.Uint32(buf[54:])),
		GyroY:  math.Float32frombits(binary.LittleEndian.Uint32(buf[58:])),
		GyroZ:  math.Float32frombits(binary.LittleEndian.Uint32(buf[62:])),
		AccelX: math.Float32frombits(binary.LittleEndian.Uint32(buf[66:])),
		AccelY: math.Float32frombits(binary.LittleEndian.Uint32(buf[70:])),
		AccelZ: math.Float32frombits(binary.LittleEndian.Uint32(buf[74:])),

		BatteryVoltage: math.Float32frombits(binary.LittleEndian.Uint32(buf[78:])),
		BatteryCurrent: math.Float32frombits(binary.LittleEndian.Uint32(buf[82:])),
		BatteryPower:   math.Float32frombits(binary.LittleEndian.Uint32(buf[86:])),
		BatteryMAhUsed: math.Float32frombits(binary.LittleEndian.Uint32(buf[90:])),

		RSSI: int16(binary.LittleEndian.Uint16(buf[94:])),
		SNR:  math.Float32frombits(binary.LittleEndian.Uint32(buf[96:])),

		Timestamp:      binary.LittleEndian.Uint64(buf[100:]),
		PacketSequence: binary.LittleEndian.Uint32(buf[108:]),
		SystemStatus:   buf[112],
	}, nil
}

// Encode serializes a packet back into the 113-byte wire layout. Encode is
// the exact inverse of Decode and is primarily used by tests and tooling.
func Encode(p types.TelemetryPacket) []byte {
	buf := make([]byte, Size)

	binary.LittleEndian.PutUint64(buf[0:], math.Float64bits(p.Latitude))
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(p.Longitude))
	binary.LittleEndian.PutUint32(buf[16:], math.Float32bits(p.AltitudeGPS))
	binary.LittleEndian.PutUint32(buf[20:], math.Float32bits(p.GroundSpeed))
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(p.Heading))
	buf[28] = p.NumSatellites
	buf[29] = p.GPSFixType

	binary.LittleEndian.PutUint32(buf[30:], math.Float32bits(p.AltitudeBaro))
	binary.LittleEndian.PutUint32(buf[34:], math.Float32bits(p.VerticalSpeed))
	binary.LittleEndian.PutUint32(buf[38:], math.Float32bits(p.Temperature))

	binary.LittleEndian.PutUint32(buf[42:], math.Float32bits(p.Roll))
	binary.LittleEndian.PutUint32(buf[46:], math.Float32bits(p.Pitch))
	binary.LittleEndian.PutUint32(buf[50:], math.Float32bits(p.Yaw))
	binary.LittleEndian.PutUint32(buf[54:], math.Float32bits(p.GyroX))
	binary.LittleEndian.PutUint32(buf[58:], math.Float32bits(p.GyroY))
	binary.LittleEndian.PutUint32(buf[62:], math.Float32bits(p.GyroZ))
	binary.LittleEndian.PutUint32(buf[66:], math.Float32bits(p.AccelX))
	binary.LittleEndian.PutUint32(buf[70:], math.Float32bits(p.AccelY))
	binary.LittleEndian.PutUint32(buf[74:], math.Float32bits(p.AccelZ))

	binary.LittleEndian.PutUint32(buf[78:], math.Float32bits(p.BatteryVoltage))
	binary.LittleEndian.PutUint32(buf[82:], math.Float32bits(p.BatteryCurrent))
	binary.LittleEndian.PutUint32(buf[86:], math.Float32bits(p.BatteryPower))
	binary.LittleEndian.PutUint32(buf[90:], math.Float32bits(p.BatteryMAhUsed))

	binary.LittleEndian.PutUint16(buf[94:], uint16(p.RSSI))
	binary.LittleEndian.PutUint32(buf[96:], math.Float32bits(p.SNR))

	binary.LittleEndian.PutUint64(buf[100:], p.Timestamp)
	binary.LittleEndian.PutUint32(buf[108:], p.PacketSequence)
	buf[112] = p.SystemStatus

	return buf
}
