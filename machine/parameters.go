package machine

// Parameters is the machine configuration block (PARMAC).
// Temperatures are in °C, delays and timeouts in seconds.
type Parameters struct {
	GasHeating      bool `yaml:"gas_heating" json:"gas_heating"`
	DoorInterlock   bool `yaml:"door_interlock" json:"door_interlock"`
	HumidityProbe   bool `yaml:"humidity_probe" json:"humidity_probe"`
	ReverseRotation bool `yaml:"reverse_rotation" json:"reverse_rotation"`
	StopOnAlarm     bool `yaml:"stop_on_alarm" json:"stop_on_alarm"`

	MaxInputTemperature  uint16 `yaml:"max_input_temperature" json:"max_input_temperature"`
	MaxOutputTemperature uint16 `yaml:"max_output_temperature" json:"max_output_temperature"`
	SafetyTemperature    uint16 `yaml:"safety_temperature" json:"safety_temperature"`
	AlarmDelay           uint16 `yaml:"alarm_delay" json:"alarm_delay"`
	AirFlowTimeout       uint16 `yaml:"air_flow_timeout" json:"air_flow_timeout"`
	CoolingTemperature   uint16 `yaml:"cooling_temperature" json:"cooling_temperature"`
}

const (
	paramGasHeating uint16 = 1 << iota
	paramDoorInterlock
	paramHumidityProbe
	paramReverseRotation
	paramStopOnAlarm
)

// Words packs the parameters in register order, the booleans in the first word.
func (p Parameters) Words() [ParametersLength]uint16 {
	return [ParametersLength]uint16{
		flag(p.GasHeating, paramGasHeating) |
			flag(p.DoorInterlock, paramDoorInterlock) |
			flag(p.HumidityProbe, paramHumidityProbe) |
			flag(p.ReverseRotation, paramReverseRotation) |
			flag(p.StopOnAlarm, paramStopOnAlarm),
		p.MaxInputTemperature,
		p.MaxOutputTemperature,
		p.SafetyTemperature,
		p.AlarmDelay,
		p.AirFlowTimeout,
		p.CoolingTemperature,
	}
}

func ParametersFromWords(w [ParametersLength]uint16) Parameters {
	return Parameters{
		GasHeating:           w[0]&paramGasHeating != 0,
		DoorInterlock:        w[0]&paramDoorInterlock != 0,
		HumidityProbe:        w[0]&paramHumidityProbe != 0,
		ReverseRotation:      w[0]&paramReverseRotation != 0,
		StopOnAlarm:          w[0]&paramStopOnAlarm != 0,
		MaxInputTemperature:  w[1],
		MaxOutputTemperature: w[2],
		SafetyTemperature:    w[3],
		AlarmDelay:           w[4],
		AirFlowTimeout:       w[5],
		CoolingTemperature:   w[6],
	}
}
