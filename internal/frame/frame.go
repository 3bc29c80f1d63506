package frame

import "fmt"

// Type identifies the payload layout of a telemetry frame.
type Type uint8

const (
	TypeRocketStatus Type = 0x01
	TypeGNSS         Type = 0x02
	TypeAltitude     Type = 0x03
	TypePressure     Type = 0x04
	TypeTemperature  Type = 0x05
	TypeHumidity     Type = 0x06
	TypeMissionTime  Type = 0x07
)

// Valid reports whether t is a known frame type.
func (t Type) Valid() bool {
	return t >= TypeRocketStatus && t <= TypeMissionTime
}

func (t Type) String() string {
	switch t {
	case TypeRocketStatus:
		return "rocket_status"
	case TypeGNSS:
		return "gnss"
	case TypeAltitude:
		return "altitude"
	case TypePressure:
		return "pressure"
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeMissionTime:
		return "mission_time"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(t))
	}
}

// SensorStatus is the reported state of one onboard sensor.
type SensorStatus uint8

const (
	SensorNone SensorStatus = iota
	SensorInitializing
	SensorRunning
	SensorSelfTestFailed
	SensorFailed
)

func (s SensorStatus) String() string {
	switch s {
	case SensorNone:
		return "none"
	case SensorInitializing:
		return "initializing"
	case SensorRunning:
		return "running"
	case SensorSelfTestFailed:
		return "self test failed"
	case SensorFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DeploymentState is the recovery state machine position reported by the
// flight computer.
type DeploymentState int8

const (
	DeploymentDNE           DeploymentState = -1
	DeploymentIdle          DeploymentState = 0x0
	DeploymentArmed         DeploymentState = 0x1
	DeploymentPoweredAscent DeploymentState = 0x2
	DeploymentCoastingAscent DeploymentState = 0x3
	DeploymentDrogueDeploy  DeploymentState = 0x4
	DeploymentDrogueDescent DeploymentState = 0x5
	DeploymentMainDeploy    DeploymentState = 0x6
	DeploymentMainDescent   DeploymentState = 0x7
	DeploymentRecovery      DeploymentState = 0x8
)

func (d DeploymentState) String() string {
	switch d {
	case DeploymentDNE:
		return ""
	case DeploymentIdle:
		return "idle"
	case DeploymentArmed:
		return "armed"
	case DeploymentPoweredAscent:
		return "powered ascent"
	case DeploymentCoastingAscent:
		return "coasting ascent"
	case DeploymentDrogueDeploy:
		return "drogue deployed"
	case DeploymentDrogueDescent:
		return "drogue descent"
	case DeploymentMainDeploy:
		return "main deployed"
	case DeploymentMainDescent:
		return "main descent"
	case DeploymentRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Frame is a single decoded telemetry unit. The payload variant is fully
// determined by Type.
type Frame struct {
	Type Type
	// MissionTime is milliseconds since launch, monotonic in intent.
	MissionTime uint32
	Payload     Payload
}

// Payload is one of the typed payload variants below.
type Payload interface {
	payloadType() Type
}

// StatusPayload reports sensor and recovery system health.
type StatusPayload struct {
	KX134State      SensorStatus
	AltimeterState  SensorStatus
	IMUState        SensorStatus
	SDCardState     SensorStatus
	DeploymentState DeploymentState
	BlocksRecorded  uint32
	CheckoutsMissed uint32
}

func (StatusPayload) payloadType() Type { return TypeRocketStatus }

// GNSSPayload carries a position fix. Coordinates are fixed-point degrees
// scaled by 1e7.
type GNSSPayload struct {
	Latitude  int32
	Longitude int32
}

func (GNSSPayload) payloadType() Type { return TypeGNSS }

// LatitudeDegrees returns the latitude in decimal degrees.
func (p GNSSPayload) LatitudeDegrees() float64 { return float64(p.Latitude) / 1e7 }

// LongitudeDegrees returns the longitude in decimal degrees.
func (p GNSSPayload) LongitudeDegrees() float64 { return float64(p.Longitude) / 1e7 }

// AltitudePayload carries barometric altitude in millimetres.
type AltitudePayload struct {
	Millimetres int32
}

func (AltitudePayload) payloadType() Type { return TypeAltitude }

// Metres returns the altitude in metres.
func (p AltitudePayload) Metres() float64 { return float64(p.Millimetres) / 1000 }

// PressurePayload carries barometric pressure in pascals.
type PressurePayload struct {
	Pascals uint32
}

func (PressurePayload) payloadType() Type { return TypePressure }

// TemperaturePayload carries temperature in hundredths of a degree C.
type TemperaturePayload struct {
	CentiCelsius int32
}

func (TemperaturePayload) payloadType() Type { return TypeTemperature }

// Celsius returns the temperature in degrees C.
func (p TemperaturePayload) Celsius() float64 { return float64(p.CentiCelsius) / 100 }

// HumidityPayload carries relative humidity in hundredths of a percent.
type HumidityPayload struct {
	CentiPercent uint32
}

func (HumidityPayload) payloadType() Type { return TypeHumidity }

// Percentage returns the relative humidity in percent.
func (p HumidityPayload) Percentage() float64 { return float64(p.CentiPercent) / 100 }

// MissionTimePayload is a bare timestamp beacon with no measurement.
type MissionTimePayload struct{}

func (MissionTimePayload) payloadType() Type { return TypeMissionTime }
