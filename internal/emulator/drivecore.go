package emulator

import (
	"encoding/binary"
	"fmt"
)

// Drive memspace numbering, matching spec.md §3 (memspace 0 = computer,
// 1-4 = drive 8-11).
const (
	MemspaceComputer = 0
	MemspaceDrive8   = 1
	MemspaceDrive9   = 2
	MemspaceDrive10  = 3
	MemspaceDrive11  = 4
)

// Drive register indices. Real VICE drive cores are 6502s with their own
// full register file; a DriveCore only needs enough register surface to
// answer REGISTERS_GET/SET and drive the three status pseudo-registers
// checkpoints key off in practice.
const (
	DriveRegPC = iota
	DriveRegTrack
	DriveRegSector
	DriveRegStatus
	driveRegCount
)

// DriveRAMSize is the flat RAM backing each virtual drive's memspace.
// Real 1541 drives carry 2KB of RAM; rounded up here to give checkpoint
// ranges room to breathe without modeling ROM banking.
const DriveRAMSize = 0x4000

// DriveCore is a lightweight, non-Unicorn backing for memspaces 1-4. It
// exists so the monitor server can answer MEM_GET/MEM_SET/REGISTERS_*/
// CHECKPOINT_* against drive memspaces without paying for four extra
// full ARM64 CPUs that no spec.md operation exercises beyond flat memory
// and a small register file.
type DriveCore struct {
	memspace int
	ram      []byte
	regs     [driveRegCount]uint64

	memHooks []MemHookFunc
}

// NewDriveCore creates a drive core for the given memspace (1-4).
func NewDriveCore(memspace int) (*DriveCore, error) {
	if memspace < MemspaceDrive8 || memspace > MemspaceDrive11 {
		return nil, fmt.Errorf("invalid drive memspace %d", memspace)
	}
	return &DriveCore{
		memspace: memspace,
		ram:      make([]byte, DriveRAMSize),
	}, nil
}

// Memspace returns the memspace number this core answers for.
func (d *DriveCore) Memspace() int { return d.memspace }

func (d *DriveCore) boundsCheck(addr, size uint64) error {
	if addr+size > uint64(len(d.ram)) {
		return fmt.Errorf("drive%d: address 0x%x+%d out of range (RAM size 0x%x)", 7+d.memspace, addr, size, len(d.ram))
	}
	return nil
}

// MemRead reads bytes from drive RAM.
func (d *DriveCore) MemRead(addr, size uint64) ([]byte, error) {
	if err := d.boundsCheck(addr, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, d.ram[addr:addr+size])
	d.dispatchMemHook('r', addr, int(size), 0)
	return out, nil
}

// MemWrite writes bytes to drive RAM.
func (d *DriveCore) MemWrite(addr uint64, data []byte) error {
	if err := d.boundsCheck(addr, uint64(len(data))); err != nil {
		return err
	}
	copy(d.ram[addr:], data)
	var v uint64
	if len(data) > 0 {
		v = uint64(data[0])
	}
	d.dispatchMemHook('w', addr, len(data), v)
	return nil
}

func (d *DriveCore) dispatchMemHook(kind byte, addr uint64, size int, value uint64) {
	for _, h := range d.memHooks {
		h(nil, kind, addr, size, value)
	}
}

// HookMem registers a memory-access observer, used by the checkpoint
// store to watch drive memspaces the same way it watches memspace 0.
func (d *DriveCore) HookMem(fn MemHookFunc) {
	d.memHooks = append(d.memHooks, fn)
}

// RegRead reads a drive register by index.
func (d *DriveCore) RegRead(idx int) (uint64, error) {
	if idx < 0 || idx >= driveRegCount {
		return 0, fmt.Errorf("invalid drive register %d", idx)
	}
	return d.regs[idx], nil
}

// RegWrite writes a drive register by index.
func (d *DriveCore) RegWrite(idx int, val uint64) error {
	if idx < 0 || idx >= driveRegCount {
		return fmt.Errorf("invalid drive register %d", idx)
	}
	d.regs[idx] = val
	return nil
}

// PC returns the drive's program counter.
func (d *DriveCore) PC() uint64 { return d.regs[DriveRegPC] }

// SetPC sets the drive's program counter.
func (d *DriveCore) SetPC(val uint64) error {
	d.regs[DriveRegPC] = val
	return nil
}

// MemReadU16 reads a little-endian uint16.
func (d *DriveCore) MemReadU16(addr uint64) (uint16, error) {
	data, err := d.MemRead(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// MemWriteU16 writes a little-endian uint16.
func (d *DriveCore) MemWriteU16(addr uint64, val uint16) error {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, val)
	return d.MemWrite(addr, buf)
}
