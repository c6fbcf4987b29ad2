package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/openbci/internal/device"
	"github.com/muurk/openbci/internal/protocol"
	"github.com/muurk/openbci/internal/watchdog"
)

const (
	// nominalRate is the board's sample rate in Hz
	nominalRate = 250.0

	statusInterval = 2 * time.Second
)

type (
	connectedMsg struct{ client *StreamClient }
	sampleMsg    struct{ sample protocol.Sample }
	streamErrMsg struct{ err error }
	statusMsg    struct {
		status device.Status
		err    error
	}
	statusTickMsg struct{}
	commandMsg    struct {
		name string
		err  error
	}
)

// MonitorModel is the live diagnostics view for one server
type MonitorModel struct {
	ctx     context.Context
	target  Target
	control *ControlClient

	client  *StreamClient
	spinner spinner.Model
	table   table.Model
	rate    progress.Model

	// Client side counter check, independent of the server's
	wd *watchdog.Watchdog

	latest    protocol.Sample
	status    *device.Status
	statusErr error
	notice    string
	err       error
	width     int
}

// NewMonitorModel creates a monitor for target. ctx bounds network calls.
func NewMonitorModel(ctx context.Context, target Target) MonitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	styles := table.DefaultStyles()
	styles.Header = styles.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	styles.Selected = lipgloss.NewStyle()

	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Channel", Width: 10},
			{Title: "Counts", Width: 10},
			{Title: "Value", Width: 14},
		}),
		table.WithRows(sampleRows(protocol.Sample{})),
		table.WithHeight(protocol.EEGChannels+protocol.AccelAxes+3), // rows plus bordered header
		table.WithFocused(false),
		table.WithStyles(styles),
	)

	width := GetTerminalWidth()
	return MonitorModel{
		ctx:     ctx,
		target:  target,
		control: NewControlClient(target),
		spinner: s,
		table:   t,
		rate:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(rateBarWidth(width))),
		wd:      watchdog.New(nil),
		width:   width,
	}
}

func rateBarWidth(width int) int {
	if w := width - 30; w > 20 {
		return w
	}
	return 20
}

// Init implements tea.Model
func (m MonitorModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.connect(), m.fetchStatus())
}

func (m MonitorModel) connect() tea.Cmd {
	return func() tea.Msg {
		c, err := DialStream(m.ctx, m.target)
		if err != nil {
			return streamErrMsg{err: err}
		}
		return connectedMsg{client: c}
	}
}

func readNext(c *StreamClient) tea.Cmd {
	return func() tea.Msg {
		s, err := c.Next()
		if err != nil {
			return streamErrMsg{err: err}
		}
		return sampleMsg{sample: s}
	}
}

func (m MonitorModel) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		st, err := m.control.Status(m.ctx)
		return statusMsg{status: st, err: err}
	}
}

func (m MonitorModel) command(name string) tea.Cmd {
	return func() tea.Msg {
		return commandMsg{name: name, err: m.control.Command(m.ctx, name)}
	}
}

// Update implements tea.Model
func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.closeStream()
			return m, tea.Quit
		case "b":
			return m, m.command("start")
		case "s":
			return m, m.command("stop")
		case "r":
			return m, m.command("reset")
		}

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.rate.Width = rateBarWidth(m.width)

	case spinner.TickMsg:
		if m.client != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectedMsg:
		m.client = msg.client
		return m, readNext(m.client)

	case sampleMsg:
		m.latest = msg.sample
		m.wd.HandleSample(msg.sample)
		m.table.SetRows(sampleRows(msg.sample))
		return m, readNext(m.client)

	case streamErrMsg:
		m.err = msg.err
		m.closeStream()
		return m, tea.Quit

	case statusMsg:
		if msg.err != nil {
			m.statusErr = msg.err
		} else {
			st := msg.status
			m.status, m.statusErr = &st, nil
		}
		return m, tea.Tick(statusInterval, func(time.Time) tea.Msg { return statusTickMsg{} })

	case statusTickMsg:
		return m, m.fetchStatus()

	case commandMsg:
		if msg.err != nil {
			m.notice = ErrorMessageStyle.Render(FailureMarker + " " + msg.err.Error())
		} else {
			m.notice = SuccessTitleStyle.Render(SuccessMarker + " " + msg.name + " accepted")
		}
	}
	return m, nil
}

func (m *MonitorModel) closeStream() {
	if m.client != nil {
		_ = m.client.Close()
		m.client = nil
	}
}

// Err returns the error that ended the stream, if any
func (m MonitorModel) Err() error {
	return m.err
}

// Rate returns the measured sample rate in Hz, or 0 before a full window
func (m MonitorModel) Rate() float64 {
	st := m.wd.Stats()
	if st.WindowsMeasured == 0 || st.LastWindow <= 0 {
		return 0
	}
	return watchdog.WindowSize / st.LastWindow.Seconds()
}

// View implements tea.Model
func (m MonitorModel) View() string {
	var b strings.Builder
	b.WriteString(NewHeader("OpenBCI Monitor", m.target.StreamURL, m.headerParams()).SetWidth(m.width).Render())
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(NewFailureResult("Stream ended", m.err, nil).SetWidth(m.width).Render())
		b.WriteString("\n")
		return b.String()
	}

	if m.client == nil {
		fmt.Fprintf(&b, "  %s Connecting to %s\n", m.spinner.View(), m.target.StreamURL)
		return b.String()
	}

	b.WriteString(lipgloss.NewStyle().PaddingLeft(2).Render(m.table.View()))
	b.WriteString("\n\n")

	st := m.wd.Stats()
	b.WriteString(statLine("Counter", strconv.Itoa(int(m.latest.Counter))))
	b.WriteString(statLine("Samples", strconv.FormatUint(st.Samples, 10)))

	dropped := strconv.FormatUint(st.Dropped, 10)
	if st.Dropped > 0 {
		dropped = ErrorMessageStyle.Render(fmt.Sprintf("%s (%d events)", dropped, st.DropEvents))
	}
	b.WriteString(statLine("Dropped", dropped))

	rate := m.Rate()
	percent := rate / nominalRate
	if percent > 1 {
		percent = 1
	}
	b.WriteString(statLine("Rate", m.rate.ViewAs(percent)+fmt.Sprintf(" %.1f Hz", rate)))

	if m.status != nil {
		b.WriteString(statLine("Server drops", strconv.FormatUint(m.status.Watchdog.Dropped, 10)))
	}
	if m.statusErr != nil {
		b.WriteString(statLine("Status", ErrorMessageStyle.Render(m.statusErr.Error())))
	}

	if m.notice != "" {
		b.WriteString("\n  " + m.notice + "\n")
	}
	b.WriteString("\n" + HelpStyle.Render("b start · s stop · r reset · q quit") + "\n")
	return b.String()
}

func (m MonitorModel) headerParams() map[string]string {
	if m.status == nil {
		return nil
	}
	params := map[string]string{
		"State":       m.status.State,
		"Mode":        m.status.Mode,
		"Decoder":     m.status.Strategy,
		"Subscribers": strconv.Itoa(m.status.Subscribers),
	}
	if m.status.Endpoint != "" {
		params["Board"] = m.status.Endpoint
	}
	return params
}

func statLine(label, value string) string {
	return StatLabelStyle.Render(label) + " " + StatValueStyle.Render(value) + "\n"
}

// sampleRows lays a sample out as one table row per channel and axis
func sampleRows(s protocol.Sample) []table.Row {
	rows := make([]table.Row, 0, protocol.EEGChannels+protocol.AccelAxes)

	uv := s.Microvolts()
	for i, c := range s.EEG {
		rows = append(rows, table.Row{
			fmt.Sprintf("EEG %d", i+1),
			strconv.Itoa(int(c)),
			fmt.Sprintf("%.2f µV", uv[i]),
		})
	}

	g := s.Acceleration()
	for i, c := range s.Accelerometer {
		rows = append(rows, table.Row{
			"Accel " + string(rune('X'+i)),
			strconv.Itoa(int(c)),
			fmt.Sprintf("%.3f g", g[i]),
		})
	}
	return rows
}

// RunMonitor runs the monitor until the user quits or the stream ends
func RunMonitor(ctx context.Context, target Target) error {
	p := tea.NewProgram(NewMonitorModel(ctx, target), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return err
	}
	if m, ok := final.(MonitorModel); ok {
		return m.Err()
	}
	return nil
}
