package machine

// Holding registers.
const (
	RegVersionHigh uint16 = 0 // major (high byte), minor (low byte)
	RegVersionLow  uint16 = 1 // patch
	RegBuildDate   uint16 = 2 // day bits 0-4, month bits 5-9, year offset bits 10-14
	VersionLength  uint16 = 3

	RegCommand uint16 = 3

	RegPWM      uint16 = 4
	PWMChannels uint16 = 2

	RegParameters    uint16 = 10
	ParametersLength uint16 = 7

	RegStep         uint16 = 50
	StepBlockLength uint16 = 14

	RegState     uint16 = 100
	RegAlarms    uint16 = 101
	RegFlags     uint16 = 102
	RegRemaining uint16 = 103
	StateLength  uint16 = 4

	RegPositionProgram uint16 = 104
	RegPositionStep    uint16 = 105
	RegPositionType    uint16 = 106
	PositionLength     uint16 = 3

	RegStatistics uint16 = 150
	// StatisticsLength is the number of registers read, the block reserves StatisticsBlockLength.
	StatisticsLength      uint16 = 10
	StatisticsBlockLength uint16 = 12
)

// Coils and discrete inputs.
const (
	CoilOutputs    uint16 = 0
	OutputChannels uint16 = 8

	InputDigital         uint16 = 0
	DigitalInputChannels uint16 = 8
)

// Input registers.
const (
	InputCoins        uint16 = 0
	CoinLines         uint16 = 5
	InputPayment      uint16 = 5
	InputTemperature  uint16 = 6 // RS-485 probe
	InputHumidity     uint16 = 7 // RS-485 probe
	InputADC          uint16 = 8
	ADCChannels       uint16 = 2
	InputTemperatures uint16 = 10
	InputProbeStatus  uint16 = 12
	SensorsLength     uint16 = 13
)

type Table uint8

const (
	TableHolding Table = iota
	TableInput
	TableCoil
	TableDiscrete
)

func (t Table) String() string {
	switch t {
	case TableHolding:
		return "holding"
	case TableInput:
		return "input"
	case TableCoil:
		return "coil"
	case TableDiscrete:
		return "discrete"
	default:
		return "unknown"
	}
}

// A Block is a contiguous range of registers, coils or inputs sharing a meaning.
type Block struct {
	Name   string
	Table  Table
	Index  uint16
	Length uint16
}

func (b Block) End() uint16 {
	return b.Index + b.Length
}

func (b Block) Contains(index, quantity uint16) bool {
	return index >= b.Index && uint32(index)+uint32(quantity) <= uint32(b.End())
}

// Blocks is the register map of the board firmware.
var Blocks = []Block{
	{Name: "version", Table: TableHolding, Index: RegVersionHigh, Length: VersionLength},
	{Name: "command", Table: TableHolding, Index: RegCommand, Length: 1},
	{Name: "pwm", Table: TableHolding, Index: RegPWM, Length: PWMChannels},
	{Name: "parameters", Table: TableHolding, Index: RegParameters, Length: ParametersLength},
	{Name: "step", Table: TableHolding, Index: RegStep, Length: StepBlockLength},
	{Name: "state", Table: TableHolding, Index: RegState, Length: StateLength},
	{Name: "position", Table: TableHolding, Index: RegPositionProgram, Length: PositionLength},
	{Name: "statistics", Table: TableHolding, Index: RegStatistics, Length: StatisticsBlockLength},
	{Name: "outputs", Table: TableCoil, Index: CoilOutputs, Length: OutputChannels},
	{Name: "inputs", Table: TableDiscrete, Index: InputDigital, Length: DigitalInputChannels},
	{Name: "sensors", Table: TableInput, Index: InputCoins, Length: SensorsLength},
}

// Lookup returns the block covering the whole [index, index+quantity) range.
// Reads spanning two adjacent blocks, like the state and position blocks, are not covered.
func Lookup(table Table, index, quantity uint16) (Block, bool) {
	for _, b := range Blocks {
		if b.Table == table && b.Contains(index, quantity) {
			return b, true
		}
	}

	return Block{}, false
}
