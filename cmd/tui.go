// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/dmxstat/pkg/dmx"
)

const gridColumns = 32

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for notices
}

// keyMap holds the monitor key bindings
type keyMap struct {
	Quit  key.Binding
	Pause key.Binding
	Reset key.Binding
	Grid  key.Binding
	Watch key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit, k.Pause, k.Reset, k.Grid, k.Watch}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:  key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Pause: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pause")),
		Reset: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset stats")),
		Grid:  key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "slot grid")),
		Watch: key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "watch slot")),
	}
}

// TUI model
type model struct {
	source        string
	statsInterval int
	showAll       bool
	stats         *dmx.Statistics
	eventLog      []logEntry
	maxLogEntries int

	seen       bool // any event received
	state      dmx.State
	lastFrame  *dmx.Frame
	lastResync *dmx.ResyncInfo
	watched    []int

	slotInput textinput.Model
	entering  bool
	paused    bool
	showGrid  bool
	keys      keyMap
	help      help.Model

	width     int
	height    int
	quitting  bool
	engineErr error
}

// Messages
type tickMsg time.Time
type eventMsg dmx.Event
type engineDoneMsg struct {
	err error
}

// formatUptime formats a duration as a short human-friendly string
func formatUptime(d time.Duration) string {
	d = d.Round(time.Second)
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}

func initialModel(source string, statsInterval int, showAll bool, monitored []int) model {
	// Text input for adding a watched slot
	ti := textinput.New()
	ti.Placeholder = "0-511"
	ti.CharLimit = 3
	ti.Width = 5

	watched := make([]int, 0, len(monitored))
	watched = append(watched, monitored...)

	return model{
		source:        source,
		statsInterval: statsInterval,
		showAll:       showAll,
		stats:         dmx.NewStatistics(),
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		state:         dmx.StateSynced,
		watched:       watched,
		slotInput:     ti,
		keys:          defaultKeyMap(),
		help:          help.New(),
		width:         80,
		height:        24,
	}
}

func (m model) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.entering {
			return m.updateSlotInput(msg)
		}
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused
		case key.Matches(msg, m.keys.Reset):
			m.stats.Reset()
			m.addLogEntry("Statistics reset", false)
		case key.Matches(msg, m.keys.Grid):
			m.showGrid = !m.showGrid
		case key.Matches(msg, m.keys.Watch):
			m.entering = true
			m.slotInput.SetValue("")
			return m, m.slotInput.Focus()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.stats.CalculateRates()
		return m, tickCmd()

	case eventMsg:
		m.handleEvent(dmx.Event(msg))

	case engineDoneMsg:
		m.engineErr = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// updateSlotInput handles keys while a slot number is being typed
func (m model) updateSlotInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.entering = false
		m.slotInput.Blur()
		return m, nil
	case tea.KeyEnter:
		m.entering = false
		m.slotInput.Blur()
		m.watchSlot(m.slotInput.Value())
		return m, nil
	}

	var cmd tea.Cmd
	m.slotInput, cmd = m.slotInput.Update(msg)
	return m, cmd
}

// watchSlot adds a slot address to the watched panel
func (m *model) watchSlot(value string) {
	addr, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || addr < 0 || addr >= dmx.SlotCount {
		m.addLogEntry(fmt.Sprintf("Invalid slot %q (want 0-%d)", value, dmx.SlotCount-1), true)
		return
	}
	for _, w := range m.watched {
		if w == addr {
			return
		}
	}
	m.watched = append(m.watched, addr)
	m.addLogEntry(fmt.Sprintf("Watching slot %d", addr), false)
}

// handleEvent folds one engine event into the model.
// Statistics keep counting while paused, the display does not.
func (m *model) handleEvent(e dmx.Event) {
	m.stats.Update(e)
	m.seen = true

	switch e.Kind {
	case dmx.EventSyncLost:
		m.state = dmx.StateLost
		m.addLogEntry("SYNC LOST: resynchronizing", true)

	case dmx.EventSyncFound:
		m.state = dmx.StateSynced
		m.lastResync = e.Resync
		if e.Resync != nil {
			m.addLogEntry(fmt.Sprintf("SYNC FOUND after %d chunks, %d bytes discarded",
				e.Resync.Chunks, e.Resync.Discarded), false)
		} else {
			m.addLogEntry("SYNC FOUND", false)
		}

	case dmx.EventFrame:
		m.state = dmx.StateSynced
		if m.paused || e.Frame == nil {
			return
		}
		m.lastFrame = e.Frame
		for _, a := range dmx.ValidateFrame(e.Frame) {
			m.addLogEntry(fmt.Sprintf("#%d %s", e.Frame.Seq(), a.Message), a.Type == dmx.AnomalyRDMStartCode)
		}
		if m.showAll {
			m.addLogEntry(fmt.Sprintf("#%d %s active=%d", e.Frame.Seq(),
				dmx.FormatStartCode(e.Frame.StartCode()), dmx.ActiveSlots(e.Frame.Slots())), false)
		}

	case dmx.EventMonitored:
		if m.showAll && !m.paused {
			m.addLogEntry("MONITORED "+dmx.FormatMonitored(e.Monitored), false)
		}
	}
}

func (m *model) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
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

func (m model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(titleStyle.Render("DMXSTAT - MONITOR"))
	s.WriteString("\n")
	mode := "Events only"
	if m.showAll {
		mode = "All frames"
	}
	if m.paused {
		mode += " | PAUSED"
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Up %s",
		m.source, mode, formatUptime(time.Since(m.stats.StartTime)))))
	s.WriteString("\n\n")

	// Sync status
	switch {
	case !m.seen:
		s.WriteString(warningStyle.Render("Waiting for frames..."))
	case m.state == dmx.StateLost:
		s.WriteString(errorStyle.Render("✗ Sync lost, resynchronizing"))
	default:
		s.WriteString(statsValueStyle.Render("✓ Synchronized"))
		if m.lastResync != nil {
			s.WriteString(headerStyle.Render(fmt.Sprintf(" (last resync discarded %d bytes)", m.lastResync.Discarded)))
		}
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.statsView()))
	s.WriteString("\n")

	if len(m.watched) > 0 {
		s.WriteString(statsLabelStyle.Render("Watched Slots:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.watchedView()))
		s.WriteString("\n")
	}

	if m.showGrid {
		s.WriteString(statsLabelStyle.Render("Slots:"))
		s.WriteString("\n")
		s.WriteString(boxStyle.Render(m.gridView()))
		s.WriteString("\n")
	}

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")
	s.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(m.logView(s.String())))
	s.WriteString("\n")

	if m.entering {
		s.WriteString("Watch slot: ")
		s.WriteString(m.slotInput.View())
		s.WriteString(headerStyle.Render("  (enter to add, esc to cancel)"))
	} else {
		s.WriteString(m.help.View(m.keys))
	}

	return s.String()
}

func (m model) statsView() string {
	st := m.stats
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Frames:"), statsValueStyle.Render(fmt.Sprintf("%d", st.TotalFrames)),
		statsLabelStyle.Render("Dimmer:"), statsValueStyle.Render(fmt.Sprintf("%d", st.DimmerFrames)),
		statsLabelStyle.Render("Alternate:"), warningStyle.Render(fmt.Sprintf("%d", st.AlternateFrames)),
	))

	lost := statsValueStyle.Render("0")
	if st.SyncLosses > 0 {
		lost = errorStyle.Render(fmt.Sprintf("%d", st.SyncLosses))
	}
	b.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Sync Lost:"), lost,
		statsLabelStyle.Render("Found:"), statsValueStyle.Render(fmt.Sprintf("%d", st.SyncFounds)),
		statsLabelStyle.Render("Discarded:"), statsValueStyle.Render(fmt.Sprintf("%d bytes", st.ResyncDiscarded)),
	))

	b.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Frame Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f fps", st.FrameRate)),
		statsLabelStyle.Render("Loss Rate:"), func() string {
			if st.LossRate > 0 {
				return errorStyle.Render(fmt.Sprintf("%.2f /min", st.LossRate))
			}
			return statsValueStyle.Render(fmt.Sprintf("%.2f /min", st.LossRate))
		}(),
	))
	return b.String()
}

func (m model) watchedView() string {
	var b strings.Builder
	for i, addr := range m.watched {
		if i > 0 {
			b.WriteString("\n")
		}
		label := statsLabelStyle.Render(fmt.Sprintf("Slot %3d:", addr))
		if m.lastFrame == nil {
			b.WriteString(label + " " + headerStyle.Render("--"))
			continue
		}
		v := m.lastFrame.Slot(addr)
		b.WriteString(fmt.Sprintf("%s %s %s", label,
			statsValueStyle.Render(fmt.Sprintf("%3d", v)),
			headerStyle.Render(fmt.Sprintf("(%3.0f%%)", float64(v)*100/255))))
	}
	return b.String()
}

// gridView renders all slots of the last frame as rows of hex values
func (m model) gridView() string {
	if m.lastFrame == nil {
		return headerStyle.Render("(no frame yet)")
	}
	slots := m.lastFrame.Slots()
	var b strings.Builder
	for row := 0; row < dmx.SlotCount; row += gridColumns {
		if row > 0 {
			b.WriteString("\n")
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%03d", row)))
		for _, v := range slots[row : row+gridColumns] {
			cell := fmt.Sprintf(" %02X", v)
			if v == 0 {
				b.WriteString(headerStyle.Render(cell))
			} else {
				b.WriteString(statsValueStyle.Render(cell))
			}
		}
	}
	return b.String()
}

// logView renders as many recent entries as fit below the rendered panels
func (m model) logView(above string) string {
	logHeight := m.height - lipgloss.Height(above) - 4
	if logHeight < 5 {
		logHeight = 5
	}

	if len(m.eventLog) == 0 {
		return headerStyle.Render("  (no events yet)")
	}

	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	var b strings.Builder
	for i := startIdx; i < len(m.eventLog); i++ {
		entry := m.eventLog[i]
		timestamp := entry.timestamp.Format("15:04:05.000")
		if entry.isError {
			b.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), errorStyle.Render("✗ "+entry.message)))
		} else {
			b.WriteString(fmt.Sprintf("%s %s\n", headerStyle.Render(timestamp), warningStyle.Render("ℹ "+entry.message)))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
