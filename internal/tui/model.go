package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zboralski/vicemon/internal/ui/colorize"
	"github.com/zboralski/vicemon/internal/wire"
)

var registerNames = map[uint8]string{
	0: "X0", 1: "X1", 2: "X2", 3: "X3", 4: "X4",
	5: "X5", 6: "X6", 7: "X7", 8: "X8",
	9: "PC", 10: "SP", 11: "LR",
}

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
	activePaneStyle = paneStyle.BorderForeground(lipgloss.Color("33"))
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// eventMsg wraps a frame forwarded from Client.Events so Update can
// process it through bubbletea's message loop instead of a bare channel
// read racing the view.
type eventMsg rawFrame

// tickMsg drives the periodic register/memory/checkpoint refresh.
type tickMsg time.Time

// Model is the bubbletea program for "galago monitor <addr>": a register
// pane, a memory hex pane, a checkpoint list, and a command line.
type Model struct {
	client *Client
	addr   string

	registers []RegisterValue
	memBase   uint16
	memory    []byte
	checkpoints []CheckpointInfo

	status string
	err    error

	input    textinput.Model
	mem      viewport.Model
	width    int
	height   int
	resident bool
}

// New builds the initial model for a connected Client.
func New(client *Client, addr string) Model {
	ti := textinput.New()
	ti.Placeholder = "command (help for list)"
	ti.Prompt = "› "
	ti.Focus()

	return Model{
		client: client,
		addr:   addr,
		memBase: 0,
		input:   ti,
		mem:     viewport.New(40, 10),
		status:  "connected to " + addr,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.refreshCmd(), m.waitForEventCmd(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) waitForEventCmd() tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-m.client.Events
		if !ok {
			return nil
		}
		return eventMsg(frame)
	}
}

// refreshCmd pulls a fresh register/memory/checkpoint snapshot. Run
// synchronously inside a tea.Cmd (off the Update goroutine) since Client
// blocks on Send.
func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		regs, err := m.client.ReadRegisters(0)
		if err != nil {
			return errMsg{err}
		}
		mem, err := m.client.ReadMemory(0, 0, m.memBase, m.memBase+63)
		if err != nil {
			return errMsg{err}
		}
		cps, err := m.client.ListCheckpoints()
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg{registers: regs, memory: mem, checkpoints: cps}
	}
}

type snapshotMsg struct {
	registers   []RegisterValue
	memory      []byte
	checkpoints []CheckpointInfo
}

type errMsg struct{ err error }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.mem.Width = m.width/2 - 4
		m.mem.Height = m.height/2 - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			return m.runCommand()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case snapshotMsg:
		m.registers = msg.registers
		m.memory = msg.memory
		m.checkpoints = msg.checkpoints
		m.mem.SetContent(renderHexDump(m.memBase, m.memory))
		return m, nil

	case eventMsg:
		frame := rawFrame(msg)
		m.status = describeEvent(frame)
		switch frame.responseType {
		case wire.RespStopped:
			m.resident = true
		case wire.RespResumed:
			m.resident = false
		}
		return m, m.waitForEventCmd()

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.width == 0 {
		return "connecting…"
	}

	regPane := activePaneStyle.Width(m.width/2 - 4).Render(renderRegisters(m.registers))
	memPane := paneStyle.Width(m.width/2 - 4).Render(titleStyle.Render("memory") + "\n" + m.mem.View())
	cpPane := paneStyle.Width(m.width - 4).Render(renderCheckpoints(m.checkpoints))

	top := lipgloss.JoinHorizontal(lipgloss.Top, regPane, memPane)

	status := statusStyle.Render(m.status)
	if m.err != nil {
		status = colorize.Error(m.err.Error())
	}

	return lipgloss.JoinVertical(lipgloss.Left, top, cpPane, status, m.input.View())
}

func renderRegisters(regs []RegisterValue) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("registers"))
	b.WriteString("\n")
	for _, r := range regs {
		name := registerNames[r.ID]
		if name == "" {
			name = fmt.Sprintf("R%d", r.ID)
		}
		b.WriteString(fmt.Sprintf("%-4s %s\n", name, colorize.Address(uint64(r.Value))))
	}
	return b.String()
}

func renderHexDump(base uint16, data []byte) string {
	var b strings.Builder
	for i := 0; i < len(data); i += 16 {
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		row := data[i:end]
		b.WriteString(colorize.Address(uint64(base) + uint64(i)))
		b.WriteString("  ")
		for _, byt := range row {
			b.WriteString(colorize.HexBytes(fmt.Sprintf("%02x ", byt)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderCheckpoints(cps []CheckpointInfo) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("checkpoints"))
	b.WriteString("\n")
	if len(cps) == 0 {
		b.WriteString(statusStyle.Render("(none set)"))
		return b.String()
	}
	for _, cp := range cps {
		state := "on"
		if !cp.Enabled {
			state = colorize.Comment("off")
		}
		b.WriteString(fmt.Sprintf("#%-3d %s-%s %-3s hits=%d\n",
			cp.Number, colorize.Address(uint64(cp.Start)), colorize.Address(uint64(cp.End)), state, cp.HitCount))
	}
	return b.String()
}
