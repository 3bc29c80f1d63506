package store

// Snapshot is the dashboard wire message, binary format version 1 of the
// external JSON schema. One object is published per store update.
type Snapshot struct {
	Rocket    string    `json:"rocket"`
	Status    Status    `json:"status"`
	Telemetry Telemetry `json:"telemetry"`
}

type Status struct {
	Rocket RocketStatus `json:"rocket"`
}

type RocketStatus struct {
	DeploymentState string `json:"deployment_state"`
	KX134State      string `json:"kx134_state,omitempty"`
	AltimeterState  string `json:"altimeter_state,omitempty"`
	IMUState        string `json:"imu_state,omitempty"`
	SDCardState     string `json:"sd_card_state,omitempty"`
	BlocksRecorded  uint32 `json:"blocks_recorded,omitempty"`
	CheckoutsMissed uint32 `json:"checkouts_missed,omitempty"`
}

type Telemetry struct {
	LastMissionTime uint32             `json:"last_mission_time"`
	GNSS            *GNSSSeries        `json:"gnss,omitempty"`
	Altitude        *AltitudeSeries    `json:"altitude,omitempty"`
	Pressure        *PressureSeries    `json:"pressure,omitempty"`
	Temperature     *TemperatureSeries `json:"temperature,omitempty"`
	Humidity        *HumiditySeries    `json:"humidity,omitempty"`
}

type GNSSSeries struct {
	Latitude  []float64 `json:"latitude"`
	Longitude []float64 `json:"longitude"`
}

type AltitudeSeries struct {
	Feet []float64 `json:"feet"`
}

type PressureSeries struct {
	Pascals []float64 `json:"pascals"`
}

type TemperatureSeries struct {
	Celsius []float64 `json:"celsius"`
}

type HumiditySeries struct {
	Percentage []float64 `json:"percentage"`
}
