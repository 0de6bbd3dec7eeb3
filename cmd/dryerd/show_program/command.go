package showprogram

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"strconv"

	"github.com/go-analyze/charts"
	"github.com/mattn/go-sixel"
	"github.com/mdouchement/dryerd"
	"github.com/mdouchement/dryerd/program"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var resolution int
	var index int

	cmd := &cobra.Command{
		Use:   "show-program",
		Short: "Show the temperature and speed profile of the programs",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := dryerd.Load(cpath)
			if err != nil {
				return err
			}

			programs := cfg.Programs
			if index >= 0 {
				p, ok := cfg.Program(index)
				if !ok {
					return fmt.Errorf("%w: %d", dryerd.ErrNoProgram, index)
				}
				programs = []*program.Program{p}
			}

			for _, p := range programs {
				if err := render(p, resolution); err != nil {
					return fmt.Errorf("%s: %w", p.Name, err)
				}
			}

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", "/etc/dryerd/dryerd.yml", "Configfile path")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 1000, "The width size in pixel of each graph")
	cmd.Flags().IntVarP(&index, "program", "p", -1, "The index of the program to show, all by default")

	return cmd
}

// profile returns the setpoints of p for each minute.
func profile(p *program.Program) (temperatures, speeds []float64) {
	for i := range p.Len() {
		s, _ := p.Step(i)

		var temperature, speed uint16
		switch s := s.(type) {
		case program.Drying:
			temperature, speed = s.Temperature, s.Speed
		case program.Cooling:
			temperature, speed = s.Temperature, s.Speed
		case program.Unfolding:
			speed = s.Speed
		}

		for range s.Minutes() {
			temperatures = append(temperatures, float64(temperature))
			speeds = append(speeds, float64(speed))
		}
	}

	return temperatures, speeds
}

func render(p *program.Program, resolution int) error {
	temperatures, speeds := profile(p)

	set := charts.LineSeriesList{
		{Name: "°C", Values: temperatures},
		{Name: "speed %", Values: speeds},
	}

	opt := charts.NewLineChartOptionWithSeries(set)
	opt.Theme = charts.GetTheme(charts.ThemeVividDark)
	opt.Padding = charts.NewBox(20, 20, 20, 20)
	opt.Title.Text = fmt.Sprintf("%s (%d min)", p.Name, p.Duration())
	opt.Title.FontStyle.FontSize = 16
	opt.Title.Offset = charts.OffsetLeft
	opt.Legend = charts.LegendOption{
		Show:     dryerd.ToPtr(true),
		Offset:   charts.OffsetCenter,
		Vertical: dryerd.ToPtr(true),
		Padding:  charts.NewBox(0, 0, 0, 20),
	}
	opt.Symbol = charts.SymbolNone
	opt.LineStrokeWidth = 2
	opt.XAxis.Show = dryerd.ToPtr(true)
	opt.XAxis.Title = "min"
	opt.XAxis.Labels = []string{} // Reset
	for m := range len(temperatures) {
		opt.XAxis.Labels = append(opt.XAxis.Labels, strconv.Itoa(m))
	}
	opt.XAxis.LabelCount = max(len(temperatures)/5, 1)
	opt.YAxis = []charts.YAxisOption{
		{
			Show:                   dryerd.ToPtr(true),
			Min:                    dryerd.ToPtr(float64(0)),
			Max:                    dryerd.ToPtr(float64(120)),
			RangeValuePaddingScale: dryerd.ToPtr(float64(0)),
			Unit:                   10,
		},
	}
	painter := charts.NewPainter(charts.PainterOptions{
		OutputFormat: charts.ChartOutputPNG,
		Width:        resolution,
		Height:       int(float64(resolution) / (16.0 / 9.0)),
	})

	err := painter.LineChart(opt)
	if err != nil {
		return err
	}

	data, err := painter.Bytes()
	if err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}

	return sixel.NewEncoder(os.Stdout).Encode(img)
}
