// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Thermoquad/pumpstat/pkg/monitor"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	displayRefresh    = 250 * time.Millisecond
	maxEventLog       = 100
	exportPrefixStamp = "20060102-150405"
)

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	kind      monitor.EventKind
	message   string
	isError   bool
}

// monitorKeyMap lists the TUI key bindings
type monitorKeyMap struct {
	Monitor key.Binding
	Connect key.Binding
	Start   key.Binding
	Stop    key.Binding
	Export  key.Binding
	Quit    key.Binding
}

func newMonitorKeyMap() monitorKeyMap {
	return monitorKeyMap{
		Monitor: key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "start/stop monitoring")),
		Connect: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "reconnect")),
		Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start pump")),
		Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop pump")),
		Export:  key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Monitor, k.Connect, k.Start, k.Stop, k.Export, k.Quit}
}

func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// TUI model
type monitorModel struct {
	ctx      context.Context
	loop     *monitor.Loop
	events   <-chan monitor.Event
	connInfo string

	snapshot      monitor.Snapshot
	eventLog      []eventLogEntry
	maxLogEntries int

	keys        monitorKeyMap
	help        help.Model
	exportInput textinput.Model
	exporting   bool

	width    int
	height   int
	quitting bool
}

// Messages
type monitorTickMsg time.Time

type monitorEventMsg monitor.Event

type actionDoneMsg struct {
	action string
	err    error
}

type exportDoneMsg struct {
	files []string
	err   error
}

func initialMonitorModel(ctx context.Context, loop *monitor.Loop, events <-chan monitor.Event, connInfo string) monitorModel {
	ti := textinput.New()
	ti.Prompt = "Export prefix: "
	ti.Placeholder = "pumpstat-run"
	ti.CharLimit = 200
	ti.Width = 40

	return monitorModel{
		ctx:           ctx,
		loop:          loop,
		events:        events,
		connInfo:      connInfo,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: maxEventLog,
		keys:          newMonitorKeyMap(),
		help:          help.New(),
		exportInput:   ti,
		width:         80,
		height:        24,
	}
}

// runMonitorTUI runs the TUI until the user quits or ctx ends
func runMonitorTUI(ctx context.Context, loop *monitor.Loop, events <-chan monitor.Event, connInfo string) error {
	p := tea.NewProgram(initialMonitorModel(ctx, loop, events, connInfo))

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	_, err := p.Run()
	return err
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		monitorTickCmd(),
		waitForEvent(m.events),
		tea.EnterAltScreen,
	)
}

func monitorTickCmd() tea.Cmd {
	return tea.Tick(displayRefresh, func(t time.Time) tea.Msg {
		return monitorTickMsg(t)
	})
}

// waitForEvent delivers the next engine event to the model
func waitForEvent(events <-chan monitor.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		if !ok {
			return nil
		}
		return monitorEventMsg(e)
	}
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.exporting {
			return m.updateExportInput(msg)
		}
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case monitorTickMsg:
		m.snapshot = m.loop.Snapshot()
		return m, monitorTickCmd()

	case monitorEventMsg:
		e := monitor.Event(msg)
		m.addLogEntry(e.Time, e.Kind, e.Message, e.Kind.IsAlert())
		return m, waitForEvent(m.events)

	case actionDoneMsg:
		if msg.err != nil {
			m.addLogEntry(time.Now(), monitor.EventNotice, fmt.Sprintf("%s: %v", msg.action, msg.err), true)
		}

	case exportDoneMsg:
		if msg.err != nil {
			m.addLogEntry(time.Now(), monitor.EventNotice, fmt.Sprintf("Export failed: %v", msg.err), true)
		} else {
			m.addLogEntry(time.Now(), monitor.EventNotice, "Exported "+strings.Join(msg.files, ", "), false)
		}
	}

	return m, nil
}

func (m monitorModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Monitor):
		if m.snapshot.State == monitor.StateMonitoring {
			return m, m.action("Stop monitoring", m.loop.StopMonitoring)
		}
		return m, m.action("Start monitoring", m.loop.StartMonitoring)

	case key.Matches(msg, m.keys.Connect):
		return m, m.action("Connect", m.loop.Connect)

	case key.Matches(msg, m.keys.Start):
		return m, m.action("Start pump", m.loop.StartPump)

	case key.Matches(msg, m.keys.Stop):
		return m, m.action("Stop pump", m.loop.StopPump)

	case key.Matches(msg, m.keys.Export):
		m.exporting = true
		m.exportInput.SetValue("pumpstat-" + time.Now().Format(exportPrefixStamp))
		m.exportInput.CursorEnd()
		return m, m.exportInput.Focus()
	}
	return m, nil
}

func (m monitorModel) updateExportInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.exporting = false
		m.exportInput.Blur()
		return m, nil

	case tea.KeyEnter:
		prefix := strings.TrimSpace(m.exportInput.Value())
		m.exporting = false
		m.exportInput.Blur()
		if prefix == "" {
			return m, nil
		}
		return m, m.export(prefix)
	}

	var cmd tea.Cmd
	m.exportInput, cmd = m.exportInput.Update(msg)
	return m, cmd
}

// action runs a loop request off the UI goroutine. Engine events raised by
// the request arrive through the event channel.
func (m monitorModel) action(name string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: name, err: fn(ctx)}
	}
}

// export writes <prefix>.csv and <prefix>.png
func (m monitorModel) export(prefix string) tea.Cmd {
	ctx, loop := m.ctx, m.loop
	return func() tea.Msg {
		csvPath, pngPath := prefix+".csv", prefix+".png"
		if err := writeFile(csvPath, func(w io.Writer) error { return loop.WriteCSV(ctx, w) }); err != nil {
			return exportDoneMsg{err: err}
		}
		err := writeFile(pngPath, func(w io.Writer) error { return loop.WritePNG(ctx, w) })
		if errors.Is(err, monitor.ErrNotEnoughPoints) {
			return exportDoneMsg{files: []string{csvPath + " (chart skipped: not enough points)"}}
		}
		if err != nil {
			return exportDoneMsg{err: err}
		}
		return exportDoneMsg{files: []string{csvPath, pngPath}}
	}
}

func (m *monitorModel) addLogEntry(at time.Time, kind monitor.EventKind, message string, isError bool) {
	m.eventLog = append(m.eventLog, eventLogEntry{
		timestamp: at,
		kind:      kind,
		message:   message,
		isError:   isError,
	})

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	s := m.snapshot
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("PUMPSTAT - VACUUM MONITOR"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s | State: %s", m.connInfo, s.State)))
	b.WriteString("\n\n")

	if s.State != monitor.StateDisconnected && !s.Connected {
		b.WriteString(errorStyle.Render("✗ Device disconnected, waiting for it to respond"))
		b.WriteString("\n\n")
	}
	if s.TipSealAlert {
		b.WriteString(warningStyle.Render("⚠ Tip seal service due"))
		b.WriteString("\n\n")
	}

	b.WriteString(boxStyle.Render(m.readingsView()))
	b.WriteString("\n")
	b.WriteString(boxStyle.Render(m.statisticsView()))
	b.WriteString("\n\n")

	// Event log
	b.WriteString(labelStyle.Render("Recent Events:"))
	b.WriteString("\n")
	b.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.eventLogView()))
	b.WriteString("\n")

	if m.exporting {
		b.WriteString(m.exportInput.View())
		b.WriteString(headerStyle.Render("  (enter to write, esc to cancel)"))
	} else {
		b.WriteString(m.help.View(m.keys))
	}

	return b.String()
}

func (m monitorModel) readingsView() string {
	s := m.snapshot
	var c strings.Builder

	pressure := valueStyle.Render(s.Pressure + " " + s.Units.String())
	if s.PressureValue == nil {
		pressure = errorStyle.Render(orDash(s.Pressure))
	}
	fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Pressure:"), pressure)

	turbo := fmt.Sprintf("%s RPM (%s)", orDash(s.Turbo), s.TurboState)
	if s.TurboState == monitor.TurboUnknown {
		fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Turbo:"), warningStyle.Render(turbo))
	} else {
		fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Turbo:"), valueStyle.Render(turbo))
	}

	fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Pump:"), valueStyle.Render(s.PumpStatus.String()))

	tip := "--"
	if s.TipSealHours != nil {
		tip = fmt.Sprintf("%.0f h", *s.TipSealHours)
	}
	if s.TipSealAlert {
		fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Tip Seal:"), errorStyle.Render(tip))
	} else {
		fmt.Fprintf(&c, "%s %s\n", labelStyle.Render("Tip Seal:"), valueStyle.Render(tip))
	}

	fmt.Fprintf(&c, "%s %s", labelStyle.Render("Trend:"), valueStyle.Render(sparkline(s.Recent)))
	if s.LastError != "" {
		fmt.Fprintf(&c, "\n%s %s", labelStyle.Render("Last Error:"), errorStyle.Render(s.LastError))
	}
	return c.String()
}

func (m monitorModel) statisticsView() string {
	st := m.snapshot.Statistics
	var c strings.Builder

	fmt.Fprintf(&c, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Polls:"), valueStyle.Render(fmt.Sprintf("%d", st.Polls)),
		labelStyle.Render("Good:"), valueStyle.Render(fmt.Sprintf("%d", st.GoodPolls)),
		labelStyle.Render("Points:"), valueStyle.Render(fmt.Sprintf("%d/%d", m.snapshot.Points, st.PlotPoints)),
	)

	errCount := func(n uint64) string {
		if n > 0 {
			return errorStyle.Render(fmt.Sprintf("%d", n))
		}
		return valueStyle.Render("0")
	}
	fmt.Fprintf(&c, "%s %s   %s %s   %s %s\n",
		labelStyle.Render("Transport Errors:"), errCount(st.TransportErrors),
		labelStyle.Render("Decode Errors:"), errCount(st.DecodeErrors),
		labelStyle.Render("Disconnects:"), errCount(st.Disconnects),
	)

	fmt.Fprintf(&c, "%s %s   %s %s",
		labelStyle.Render("Poll Rate:"), valueStyle.Render(fmt.Sprintf("%.1f polls/s", st.PollRate)),
		labelStyle.Render("Error Rate:"), func() string {
			if st.ErrorRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
			}
			return valueStyle.Render(fmt.Sprintf("%.2f err/s", st.ErrorRate))
		}(),
	)
	return c.String()
}

func (m monitorModel) eventLogView() string {
	// Reserve space for header, readings and statistics
	logHeight := max(m.height-22, 5)

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	var c strings.Builder
	start := max(len(m.eventLog)-logHeight, 0)
	for _, entry := range m.eventLog[start:] {
		timestamp := entry.timestamp.Format("01/02/06 15:04:05")
		if entry.isError {
			fmt.Fprintf(&c, "%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message))
		} else {
			fmt.Fprintf(&c, "%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message))
		}
	}
	return strings.TrimRight(c.String(), "\n")
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// sparkline renders log10 pressure of the recent points. Points without a
// positive pressure are drawn as a gap.
func sparkline(points []monitor.PlotPoint) string {
	if len(points) == 0 {
		return "--"
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		if p.Pressure > 0 {
			v := math.Log10(p.Pressure)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return "--"
	}

	out := make([]rune, 0, len(points))
	for _, p := range points {
		if p.Pressure <= 0 {
			out = append(out, ' ')
			continue
		}
		idx := 0
		if hi > lo {
			idx = int(math.Round((math.Log10(p.Pressure) - lo) / (hi - lo) * float64(len(sparkBlocks)-1)))
		}
		out = append(out, sparkBlocks[idx])
	}
	return string(out)
}
