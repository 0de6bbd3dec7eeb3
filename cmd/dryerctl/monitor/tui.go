package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mdouchement/dryerd"
	"github.com/mdouchement/dryerd/machine"
)

var (
	alarmStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fff87"))
)

type model struct {
	table table.Model
	err   error
}

// streamEnd reports the end of the monitor stream.
type streamEnd struct {
	err error
}

func newTUI() *model {
	columns := []table.Column{
		{Title: "Dryer", Width: 20},
		{Title: "Value", Width: 48},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		Foreground(lipgloss.Color("#00afff")).
		BorderForeground(lipgloss.Color("#00afff")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("#ffffff")).
		Bold(false)
	t.SetStyles(s)

	return &model{
		table: t,
	}
}

func (m *model) Init() tea.Cmd {
	return nil
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(msg.Height)
	case dryerd.Snapshot:
		m.table.SetRows(rows(msg))
	case streamEnd:
		m.err = msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) View() string {
	return m.table.View()
}

func rows(s dryerd.Snapshot) []table.Row {
	r := s.Runner

	health := okStyle.Render("ok")
	switch {
	case !s.Health.Enabled:
		health = alarmStyle.Render("port not found")
	case s.Health.Error:
		health = alarmStyle.Render("communication error")
	}

	alarms := "-"
	if s.Alarms != 0 {
		alarms = alarmStyle.Render(s.Alarms.String())
	}

	version := "-"
	if s.Version != nil {
		version = s.Version.String()
	}

	step := "-"
	if r.Steps > 0 {
		step = fmt.Sprintf("%d/%d %s", r.Step+1, r.Steps, r.StepType)
	}

	state := r.State.String()
	if r.Pending {
		state += " (starting)"
	}
	if s.TestMode {
		state += " [test]"
	}

	rows := []table.Row{
		{"Link", health},
		{"Firmware", version},
		{"State", state},
		{"Program", fmt.Sprintf("%d: %s", r.Program, r.ProgramName)},
		{"Step", step},
		{"Remaining", (time.Duration(r.Remaining) * time.Second).String()},
		{"Alarms", alarms},
		{"Flags", flags(s.Flags)},
		{"Temperature", fmt.Sprintf("%3d°C (in %d°C / out %d°C)", s.Sensors.Temperature, s.Sensors.Temperatures[0], s.Sensors.Temperatures[1])},
		{"Humidity", fmt.Sprintf("%3d%%", s.Sensors.Humidity)},
		{"Payment", fmt.Sprintf("%d (coins %v)", s.Sensors.Payment, s.Sensors.Coins)},
	}

	if s.TestMode {
		var inputs []string
		for ch := range machine.DigitalInputChannels {
			if s.Inputs.Input(ch) {
				inputs = append(inputs, fmt.Sprint(ch))
			}
		}
		rows = append(rows, table.Row{"Inputs", strings.Join(inputs, ",")})
	}

	if s.LastError != "" {
		rows = append(rows, table.Row{"Last error", alarmStyle.Render(s.LastError)})
	}

	return rows
}

func flags(f machine.Flags) string {
	var names []string
	for _, flag := range []struct {
		flag machine.Flags
		name string
	}{
		{machine.FlagInitialized, "initialized"},
		{machine.FlagHeating, "heating"},
		{machine.FlagRotating, "rotating"},
		{machine.FlagFan, "fan"},
	} {
		if f.Has(flag.flag) {
			names = append(names, flag.name)
		}
	}

	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}
