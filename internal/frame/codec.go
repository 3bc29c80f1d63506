package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// Sync marker opening every frame.
	syncByte0 = 0xAA
	syncByte1 = 0x55

	// headerSize is marker + type + length.
	headerSize  = 5
	trailerSize = 4

	// MaxPayloadSize bounds the length field of a frame. Anything larger
	// is treated as corruption.
	MaxPayloadSize = 256

	// MinFrameSize is the smallest complete frame (mission-time beacon).
	MinFrameSize = headerSize + 4 + trailerSize
)

var (
	// ErrIncomplete means the buffer ends before the frame does. Not a
	// fault: the caller supplies more bytes and retries at the same offset.
	ErrIncomplete = errors.New("frame: incomplete")
	// ErrDesync means no sync marker at the offset. The caller scans
	// forward byte by byte for the next marker.
	ErrDesync = errors.New("frame: no sync marker")
	// ErrChecksumMismatch means the frame CRC did not verify. The frame is
	// dropped and scanning resumes just past the sync marker.
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	// ErrUnknownType means the frame type is not recognized. The frame is
	// rejected whole, never partially interpreted.
	ErrUnknownType = errors.New("frame: unknown frame type")
	// ErrFrameTooLarge means the length field exceeds MaxPayloadSize.
	ErrFrameTooLarge = errors.New("frame: length exceeds maximum")
	// ErrMalformedPayload means the payload length does not match the
	// fixed layout for the frame type.
	ErrMalformedPayload = errors.New("frame: malformed payload")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var syncMarker = []byte{syncByte0, syncByte1}

// Resync returns the index of the next sync marker at or after off, or -1
// if none is present in buf. A trailing lone 0xAA is not a match; the
// caller keeps it until the next byte arrives.
func Resync(buf []byte, off int) int {
	if off < 0 {
		off = 0
	}
	if off >= len(buf) {
		return -1
	}
	i := bytes.Index(buf[off:], syncMarker)
	if i < 0 {
		return -1
	}
	return off + i
}

// Decode decodes one frame starting at off. On success it returns the
// frame and the total number of bytes consumed. On failure the returned
// error classifies the fault per the package doc; n is always 0.
func Decode(buf []byte, off int) (Frame, int, error) {
	if off < 0 || len(buf)-off < 2 {
		return Frame{}, 0, ErrIncomplete
	}
	if buf[off] != syncByte0 || buf[off+1] != syncByte1 {
		return Frame{}, 0, ErrDesync
	}
	if len(buf)-off < headerSize {
		return Frame{}, 0, ErrIncomplete
	}

	typ := Type(buf[off+2])
	length := int(binary.LittleEndian.Uint16(buf[off+3 : off+5]))
	if length > MaxPayloadSize {
		return Frame{}, 0, ErrFrameTooLarge
	}
	total := headerSize + length + trailerSize
	if len(buf)-off < total {
		return Frame{}, 0, ErrIncomplete
	}

	body := buf[off+2 : off+headerSize+length] // type + length + payload
	want := binary.LittleEndian.Uint32(buf[off+headerSize+length : off+total])
	if crc32.Checksum(body, castagnoli) != want {
		return Frame{}, 0, ErrChecksumMismatch
	}

	payload := buf[off+headerSize : off+headerSize+length]
	f, err := parsePayload(typ, payload)
	if err != nil {
		return Frame{}, 0, err
	}
	return f, total, nil
}

// Encode serializes a frame. Encode and Decode are exact inverses for
// every valid frame.
func Encode(f Frame) []byte {
	payload := appendPayload(nil, f)
	out := make([]byte, 0, headerSize+len(payload)+trailerSize)
	out = append(out, syncByte0, syncByte1, byte(f.Type))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(payload)))
	out = append(out, payload...)
	crc := crc32.Checksum(out[2:], castagnoli)
	out = binary.LittleEndian.AppendUint32(out, crc)
	return out
}

const (
	statusPayloadLen      = 16
	gnssPayloadLen        = 12
	altitudePayloadLen    = 8
	pressurePayloadLen    = 8
	temperaturePayloadLen = 8
	humidityPayloadLen    = 8
	missionTimePayloadLen = 4
)

func parsePayload(typ Type, p []byte) (Frame, error) {
	if !typ.Valid() {
		return Frame{}, ErrUnknownType
	}
	if len(p) < 4 {
		return Frame{}, ErrMalformedPayload
	}
	f := Frame{Type: typ, MissionTime: binary.LittleEndian.Uint32(p[0:4])}

	switch typ {
	case TypeRocketStatus:
		if len(p) != statusPayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		states := binary.LittleEndian.Uint32(p[4:8])
		f.Payload = StatusPayload{
			KX134State:      SensorStatus((states >> 16) & 0x7),
			AltimeterState:  SensorStatus((states >> 19) & 0x7),
			IMUState:        SensorStatus((states >> 22) & 0x7),
			SDCardState:     SensorStatus((states >> 25) & 0x7),
			DeploymentState: DeploymentState((states >> 28) & 0xF),
			BlocksRecorded:  binary.LittleEndian.Uint32(p[8:12]),
			CheckoutsMissed: binary.LittleEndian.Uint32(p[12:16]),
		}
	case TypeGNSS:
		if len(p) != gnssPayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = GNSSPayload{
			Latitude:  int32(binary.LittleEndian.Uint32(p[4:8])),
			Longitude: int32(binary.LittleEndian.Uint32(p[8:12])),
		}
	case TypeAltitude:
		if len(p) != altitudePayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = AltitudePayload{Millimetres: int32(binary.LittleEndian.Uint32(p[4:8]))}
	case TypePressure:
		if len(p) != pressurePayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = PressurePayload{Pascals: binary.LittleEndian.Uint32(p[4:8])}
	case TypeTemperature:
		if len(p) != temperaturePayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = TemperaturePayload{CentiCelsius: int32(binary.LittleEndian.Uint32(p[4:8]))}
	case TypeHumidity:
		if len(p) != humidityPayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = HumidityPayload{CentiPercent: binary.LittleEndian.Uint32(p[4:8])}
	case TypeMissionTime:
		if len(p) != missionTimePayloadLen {
			return Frame{}, ErrMalformedPayload
		}
		f.Payload = MissionTimePayload{}
	}
	return f, nil
}

func appendPayload(dst []byte, f Frame) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, f.MissionTime)
	switch p := f.Payload.(type) {
	case StatusPayload:
		states := uint32(p.KX134State&0x7)<<16 |
			uint32(p.AltimeterState&0x7)<<19 |
			uint32(p.IMUState&0x7)<<22 |
			uint32(p.SDCardState&0x7)<<25 |
			uint32(uint8(p.DeploymentState)&0xF)<<28
		dst = binary.LittleEndian.AppendUint32(dst, states)
		dst = binary.LittleEndian.AppendUint32(dst, p.BlocksRecorded)
		dst = binary.LittleEndian.AppendUint32(dst, p.CheckoutsMissed)
	case GNSSPayload:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Latitude))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Longitude))
	case AltitudePayload:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(p.Millimetres))
	case PressurePayload:
		dst = binary.LittleEndian.AppendUint32(dst, p.Pascals)
	case TemperaturePayload:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(p.CentiCelsius))
	case HumidityPayload:
		dst = binary.LittleEndian.AppendUint32(dst, p.CentiPercent)
	case MissionTimePayload:
		// time only
	}
	return dst
}
