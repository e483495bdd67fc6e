package tui

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/zboralski/vicemon/internal/wire"
)

// describeEvent renders an unsolicited event frame for the status line.
func describeEvent(f rawFrame) string {
	switch f.responseType {
	case wire.RespStopped:
		return "stopped: monitor resident"
	case wire.RespResumed:
		return "resumed: execution continuing"
	case wire.RespJam:
		return "CPU jammed (illegal instruction or unmapped fetch)"
	case wire.RespRegisterInfo:
		return "register info updated"
	default:
		return fmt.Sprintf("event 0x%02x", uint8(f.responseType))
	}
}

// runCommand parses the command line's current text and issues it
// against the client, modeled on the textual monitor's one-line-per-
// command REPL (spec.md §6.4's parse_and_execute collaborator).
func (m Model) runCommand() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}

	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	var err error
	switch cmd {
	case "help":
		m.status = "commands: ping, step [n], reset, break <start> <end>, del <num>, toggle <num> on|off, mem <addr>, quit"
		return m, nil

	case "ping":
		err = m.client.Ping()
		if err == nil {
			m.status = "pong"
		}

	case "step":
		count := uint16(1)
		if len(args) > 0 {
			if n, perr := strconv.ParseUint(args[0], 10, 16); perr == nil {
				count = uint16(n)
			}
		}
		err = m.client.Step(count, false)
		if err == nil {
			m.status = fmt.Sprintf("stepped %d instruction(s)", count)
		}

	case "reset":
		err = m.client.Reset()
		if err == nil {
			m.status = "reset issued"
		}

	case "break":
		if len(args) < 2 {
			m.status = "usage: break <start-hex> <end-hex>"
			return m, nil
		}
		start := parseHex16(args[0])
		end := parseHex16(args[1])
		var cp CheckpointInfo
		cp, err = m.client.SetCheckpoint(start, end, true, true, 7, false)
		if err == nil {
			m.status = fmt.Sprintf("checkpoint #%d set", cp.Number)
		}

	case "del":
		if len(args) < 1 {
			m.status = "usage: del <num>"
			return m, nil
		}
		num, _ := strconv.ParseUint(args[0], 10, 32)
		err = m.client.DeleteCheckpoint(uint32(num))
		if err == nil {
			m.status = fmt.Sprintf("checkpoint #%d deleted", num)
		}

	case "toggle":
		if len(args) < 2 {
			m.status = "usage: toggle <num> on|off"
			return m, nil
		}
		num, _ := strconv.ParseUint(args[0], 10, 32)
		err = m.client.ToggleCheckpoint(uint32(num), args[1] == "on")
		if err == nil {
			m.status = fmt.Sprintf("checkpoint #%d set to %s", num, args[1])
		}

	case "mem":
		if len(args) < 1 {
			m.status = "usage: mem <addr-hex>"
			return m, nil
		}
		m.memBase = parseHex16(args[0])
		m.status = fmt.Sprintf("memory view base 0x%04x", m.memBase)
		return m, m.refreshCmd()

	case "quit":
		_ = m.client.Exit()
		return m, tea.Quit

	default:
		m.status = fmt.Sprintf("unknown command %q (try help)", cmd)
		return m, nil
	}

	if err != nil {
		m.err = err
		return m, nil
	}
	m.err = nil
	return m, m.refreshCmd()
}

func parseHex16(s string) uint16 {
	s = strings.TrimPrefix(s, "0x")
	v, _ := strconv.ParseUint(s, 16, 16)
	return uint16(v)
}
