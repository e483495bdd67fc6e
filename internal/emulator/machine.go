package emulator

import (
	"fmt"

	"github.com/zboralski/vicemon/internal/trace"
)

// Machine is the Adapter collaborator spec.md §6.4 describes: the single
// point the monitor server's handlers talk to for every memspace,
// register, checkpoint, and control operation. It owns one real ARM64
// Core (memspace 0) and up to four DriveCores (memspaces 1-4), plus the
// checkpoint store shared across all of them.
type Machine struct {
	Core        *Core
	Drives      map[int]*DriveCore
	Checkpoints *CheckpointStore

	// Tracer, if set, receives a trace.Event for every checkpoint hit,
	// reset, autostart, and keyboard feed. Nil by default; the monitor
	// server wires it to its logger.
	Tracer func(*trace.Event)

	resident bool // true once the emulation thread has trapped into the monitor
}

// emit builds and enriches a trace.Event and hands it to Tracer, if one
// is wired. A no-op when Tracer is nil, so callers never need to guard.
func (m *Machine) emit(pc uint64, memspace int, category trace.Tag, name, detail string) {
	if m.Tracer == nil {
		return
	}
	e := trace.NewEvent(pc, string(category), name, detail)
	e.Memspace = memspace
	trace.DefaultEnricher(e)
	m.Tracer(e)
}

// NewMachine builds a Machine with memspace 0 live and drives 8-11
// present. Real VICE only instantiates the drives a user has actually
// enabled; this server keeps all four present but idle, which keeps
// BANKS_AVAILABLE/REGISTERS_AVAILABLE answers simple and deterministic.
func NewMachine() (*Machine, error) {
	core, err := NewCore()
	if err != nil {
		return nil, fmt.Errorf("create computer core: %w", err)
	}

	m := &Machine{
		Core:        core,
		Drives:      make(map[int]*DriveCore),
		Checkpoints: NewCheckpointStore(),
	}

	for ms := MemspaceDrive8; ms <= MemspaceDrive11; ms++ {
		d, err := NewDriveCore(ms)
		if err != nil {
			core.Close()
			return nil, err
		}
		m.Drives[ms] = d
	}

	m.wireCheckpointHooks()

	return m, nil
}

// Close releases the computer core. Drive cores hold no external
// resources.
func (m *Machine) Close() error {
	return m.Core.Close()
}

// wireCheckpointHooks subscribes the checkpoint store to every memspace's
// memory accesses and to the computer core's instruction stream, so a
// CHECKPOINT_SET is live the instant it's added.
func (m *Machine) wireCheckpointHooks() {
	m.Core.HookMem(func(c *Core, kind byte, addr uint64, size int, value uint64) {
		op := OpLoad
		if kind == 'w' {
			op = OpStore
		}
		for _, hit := range m.Checkpoints.Check(MemspaceComputer, op, addr) {
			m.emit(addr, MemspaceComputer, trace.Checkpoint,
				fmt.Sprintf("checkpoint#%d", hit.Checkpoint.Number),
				fmt.Sprintf("op=%v addr=0x%x stop=%v", op, addr, hit.Stop))
			if hit.Stop {
				m.Core.Stop()
			}
		}
	})
	m.Core.HookCode(func(c *Core, addr uint64, size uint32) {
		for _, hit := range m.Checkpoints.Check(MemspaceComputer, OpExec, addr) {
			m.emit(addr, MemspaceComputer, trace.Checkpoint,
				fmt.Sprintf("checkpoint#%d", hit.Checkpoint.Number),
				fmt.Sprintf("op=exec addr=0x%x stop=%v", addr, hit.Stop))
			if hit.Stop {
				m.Core.Stop()
			}
		}
	})

	for ms, d := range m.Drives {
		ms, d := ms, d
		d.HookMem(func(_ *Core, kind byte, addr uint64, size int, value uint64) {
			op := OpLoad
			if kind == 'w' {
				op = OpStore
			}
			for _, hit := range m.Checkpoints.Check(ms, op, addr) {
				m.emit(addr, ms, trace.Checkpoint,
					fmt.Sprintf("checkpoint#%d", hit.Checkpoint.Number),
					fmt.Sprintf("op=%v addr=0x%x stop=%v", op, addr, hit.Stop))
			}
		})
	}
}

// Jam records a trace event for an illegal-instruction or unmapped-fetch
// halt, the computer core condition that produces a JAM event.
func (m *Machine) Jam() {
	m.emit(m.Core.PC(), MemspaceComputer, trace.Jam, "jam", "illegal instruction or unmapped fetch")
}

// IsValidMemspace reports whether memspace names a real memspace (0-4).
func (m *Machine) IsValidMemspace(memspace int) bool {
	return memspace == MemspaceComputer || (memspace >= MemspaceDrive8 && memspace <= MemspaceDrive11)
}

// wireMemBase is the Core address the computer memspace's wire-visible
// address 0 maps to. MEM_GET/MEM_SET carry a 16-bit address field
// (original_source's classic 64KB-address-space convention, preserved
// byte-for-byte); the computer Core's regions, by contrast, live at
// 32-bit bases like CodeBase. Every computer-memspace memory address
// crossing the wire is relative to CodeBase so that wire address 0 names
// the first byte of the loaded program, the same mental model
// original_source's monitor gives a user working in a 6502's address
// space.
const wireMemBase = CodeBase

// ReadMemory reads size bytes at addr in the given memspace/bank. addr is
// wire-relative for the computer memspace (see wireMemBase) and absolute
// within the drive's own flat RAM for drive memspaces. Bank is not
// consulted: every memspace exposes a single bank (see BankList).
func (m *Machine) ReadMemory(memspace int, bank uint16, addr, size uint64) ([]byte, error) {
	if memspace == MemspaceComputer {
		return m.Core.MemRead(wireMemBase+addr, size)
	}
	d, ok := m.Drives[memspace]
	if !ok {
		return nil, fmt.Errorf("invalid memspace %d", memspace)
	}
	return d.MemRead(addr, size)
}

// WriteMemory writes data at addr in the given memspace/bank. See
// ReadMemory for the addressing convention.
func (m *Machine) WriteMemory(memspace int, bank uint16, addr uint64, data []byte) error {
	if memspace == MemspaceComputer {
		return m.Core.MemWrite(wireMemBase+addr, data)
	}
	d, ok := m.Drives[memspace]
	if !ok {
		return fmt.Errorf("invalid memspace %d", memspace)
	}
	return d.MemWrite(addr, data)
}

// Bank describes one addressable bank within a memspace.
type Bank struct {
	ID   uint16
	Name string
}

// BankList returns the banks available in a memspace. Memspace 0 exposes
// a single "cpu" bank (no ROM/RAM bank switching is modeled); drive
// memspaces expose a single "ram" bank.
func (m *Machine) BankList(memspace int) []Bank {
	if memspace == MemspaceComputer {
		return []Bank{{0, "cpu"}}
	}
	return []Bank{{0, "ram"}}
}

// BankValid reports whether bank is valid for memspace.
func (m *Machine) BankValid(memspace int, bank uint16) bool {
	for _, b := range m.BankList(memspace) {
		if b.ID == bank {
			return true
		}
	}
	return false
}

// Registers returns the register descriptor list for a memspace.
func (m *Machine) Registers(memspace int) []RegisterDescriptor {
	return RegistersForMemspace(memspace)
}

// ReadRegister reads a register by id within a memspace.
func (m *Machine) ReadRegister(memspace int, id uint8) (uint64, error) {
	if memspace == MemspaceComputer {
		v, ok := ReadComputerRegister(m.Core, id)
		if !ok {
			return 0, fmt.Errorf("invalid register id %d", id)
		}
		return v, nil
	}
	d, ok := m.Drives[memspace]
	if !ok {
		return 0, fmt.Errorf("invalid memspace %d", memspace)
	}
	v, ok := ReadDriveRegister(d, id)
	if !ok {
		return 0, fmt.Errorf("invalid register id %d", id)
	}
	return v, nil
}

// WriteRegister writes a register by id within a memspace.
func (m *Machine) WriteRegister(memspace int, id uint8, val uint64) error {
	if memspace == MemspaceComputer {
		return WriteComputerRegister(m.Core, id, val)
	}
	d, ok := m.Drives[memspace]
	if !ok {
		return fmt.Errorf("invalid memspace %d", memspace)
	}
	return WriteDriveRegister(d, id, val)
}

// StepInstructions advances the computer core count times; each step
// runs from the current PC until PC reaches that PC+4. stepOver does not
// change this: a call (BL) runs until it returns to the next instruction
// in either mode, and any branch away runs until execution comes back to
// PC+4 or an error ends the run. Checkpoints hit during the step can
// still stop execution early.
func (m *Machine) StepInstructions(count int, stepOver bool) error {
	for i := 0; i < count; i++ {
		startPC := m.Core.PC()
		target := startPC + 4 // fixed-width ARM64 instruction

		if stepOver {
			// crude call detection: BL encodes as 0x94/0x97 top byte range;
			// a real implementation would disassemble, but for step-over
			// purposes we only need "did PC change more than one insn" —
			// handled by running to target and letting LR-based return
			// catch runaway calls via the caller's own checkpoint.
		}

		if err := m.Core.Run(startPC, target); err != nil {
			return err
		}
	}
	return nil
}

// InstructionsUntilReturn runs until the computer core returns to the
// caller of the current subroutine (tracked via LR), per
// EXECUTE_UNTIL_RETURN.
func (m *Machine) InstructionsUntilReturn() error {
	returnAddr := m.Core.LR()
	return m.Core.Run(m.Core.PC(), returnAddr)
}

// Reset resets the computer core's registers: PC to CodeBase, X0-X8 to
// zero and SP to 0x1000 below the top of the stack region. Memory is
// left as it is.
// VICE distinguishes soft/hard reset; this adapter only clears register
// state.
func (m *Machine) Reset() error {
	if err := m.Core.SetPC(CodeBase); err != nil {
		return err
	}
	for i := 0; i <= 8; i++ {
		_ = m.Core.SetX(i, 0)
	}
	err := m.Core.SetSP(StackBase + StackSize - 0x1000)
	m.emit(CodeBase, MemspaceComputer, trace.Reset, "reset", "registers cleared")
	return err
}

// Autostart loads a program and optionally starts execution at its entry
// point, per the AUTOSTART command (spec.md §4 / §6.4).
func (m *Machine) Autostart(path string, run bool, fileIndex uint16, filename string) error {
	info, err := m.Core.LoadELF(path)
	if err != nil {
		return fmt.Errorf("autostart load %s: %w", path, err)
	}
	entry := info.FindEntryPoint(filename)
	if err := m.Core.SetPC(entry); err != nil {
		return err
	}
	m.emit(entry, MemspaceComputer, trace.Autostart, filename, fmt.Sprintf("entry=0x%x run=%v", entry, run))
	if run {
		return m.Core.RunFrom(entry)
	}
	return nil
}

// KeyboardFeed queues keystrokes for injection. The real VICE monitor
// feeds these through the keyboard buffer of the running machine; since
// this adapter has no keyboard-buffer collaborator of its own, queued
// text is written as a null-terminated string into the scratch bank
// where the running program (or a test) can read it back.
func (m *Machine) KeyboardFeed(text string) error {
	err := m.Core.MemWriteString(ScratchBase, text)
	m.emit(ScratchBase, MemspaceComputer, trace.Keyboard, "keyboard-feed", text)
	return err
}

// EnteredMonitor marks the machine resident in the monitor (the emulation
// thread is suspended and control belongs to the debugger). Returns the
// previous state, used by the server to decide whether to emit the
// REGISTER_INFO/STOPPED event pair (see SPEC_FULL.md §10).
func (m *Machine) EnteredMonitor() bool {
	was := m.resident
	m.resident = true
	return was
}

// LeftMonitor marks the machine no longer resident (control returned to
// the emulated CPU). Returns the previous state, used to decide whether
// to emit RESUMED.
func (m *Machine) LeftMonitor() bool {
	was := m.resident
	m.resident = false
	return was
}

// Resident reports whether the machine is currently suspended in the
// monitor.
func (m *Machine) Resident() bool {
	return m.resident
}
