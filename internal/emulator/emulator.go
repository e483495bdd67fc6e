// Package emulator implements the Adapter collaborator (spec.md §6.4):
// the real CPU/memory backing for memspace 0 (Core, ARM64 via Unicorn)
// and the lightweight drive cores for memspaces 1-4 (DriveCore).
package emulator

import (
	"encoding/binary"
	"fmt"
	"sync"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// Memory layout constants for the computer memspace (memspace 0).
const (
	CodeBase    = 0x00010000
	CodeSize    = 0x01000000 // 16MB for code
	StackBase   = 0x80000000
	StackSize   = 0x00100000 // 1MB stack
	HeapBase    = 0x90000000
	HeapSize    = 0x10000000 // 256MB heap
	ScratchBase = 0xDEAB0000 // scratch bank: scripted memory for condition tests
	ScratchSize = 0x00010000
	TLSBase     = 0xDEAC0000 // thread-local storage bank
	TLSSize     = 0x00010000
	IOVarsBase  = 0xDEAD0000 // mock I/O variable bank (ctype-style lookup tables)
	IOVarsSize  = 0x00010000
	StubBase    = 0xF0000000 // reserved for jump-stub banks
	StubSize    = 0x00100000
)

// HookType identifies different hook categories, mirrored from Unicorn's
// own hook taxonomy for readability at call sites.
type HookType int

const (
	HookCodeType HookType = iota
	HookMemReadType
	HookMemWriteType
)

// CodeHookFunc is called for each retired instruction.
type CodeHookFunc func(core *Core, addr uint64, size uint32)

// MemHookFunc is called on a memory access of the given kind ('r'/'w').
type MemHookFunc func(core *Core, kind byte, addr uint64, size int, value uint64)

// Core wraps a Unicorn ARM64 engine, providing the register/memory surface
// the monitor server's handlers and the checkpoint store operate against.
type Core struct {
	mu uc.Unicorn

	heapPtr uint64

	codeHooks []CodeHookFunc
	memHooks  []MemHookFunc
	hooksMu   sync.RWMutex

	stopped bool
}

// NewCore creates a new ARM64 core for memspace 0.
func NewCore() (*Core, error) {
	mu, err := uc.NewUnicorn(uc.ARCH_ARM64, uc.MODE_ARM)
	if err != nil {
		return nil, fmt.Errorf("create unicorn: %w", err)
	}

	c := &Core{
		mu:      mu,
		heapPtr: HeapBase,
	}

	if err := c.mapMemory(); err != nil {
		mu.Close()
		return nil, err
	}

	if err := c.setupHooks(); err != nil {
		mu.Close()
		return nil, err
	}

	return c, nil
}

// mapMemory sets up the memory layout for memspace 0.
func (c *Core) mapMemory() error {
	regions := []struct {
		base uint64
		size uint64
		name string
	}{
		{CodeBase, CodeSize, "code"},
		{StackBase, StackSize, "stack"},
		{HeapBase, HeapSize, "heap"},
		{ScratchBase, ScratchSize, "scratch"},
		{TLSBase, TLSSize, "tls"},
		{IOVarsBase, IOVarsSize, "iovars"},
		{StubBase, StubSize, "stubs"},
	}

	for _, r := range regions {
		if err := c.mu.MemMap(r.base, r.size); err != nil {
			return fmt.Errorf("map %s (0x%x): %w", r.name, r.base, err)
		}
	}

	sp := uint64(StackBase + StackSize - 0x1000)
	if err := c.mu.RegWrite(uc.ARM64_REG_SP, sp); err != nil {
		return fmt.Errorf("set SP: %w", err)
	}

	if err := c.mu.RegWrite(uc.ARM64_REG_TPIDR_EL0, TLSBase); err != nil {
		return fmt.Errorf("set TPIDR_EL0: %w", err)
	}

	zeros := make([]byte, 256)
	if err := c.mu.MemWrite(TLSBase, zeros); err != nil {
		return fmt.Errorf("init TLS: %w", err)
	}

	return nil
}

// setupHooks installs the Unicorn hooks used to drive checkpoints and
// instruction tracing. Every retired instruction and every memory access
// is offered to the registered hooks; the CheckpointStore is one such
// consumer, matching accesses against its ranges and op bitmasks.
func (c *Core) setupHooks() error {
	_, err := c.mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if c.stopped {
			c.mu.Stop()
			return
		}

		c.hooksMu.RLock()
		hooks := c.codeHooks
		c.hooksMu.RUnlock()

		for _, h := range hooks {
			h(c, addr, size)
		}
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install code hook: %w", err)
	}

	_, err = c.mu.HookAdd(uc.HOOK_MEM_READ, func(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
		c.dispatchMemHook('r', addr, size, uint64(value))
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install mem-read hook: %w", err)
	}

	_, err = c.mu.HookAdd(uc.HOOK_MEM_WRITE, func(mu uc.Unicorn, access int, addr uint64, size int, value int64) {
		c.dispatchMemHook('w', addr, size, uint64(value))
	}, 1, 0)
	if err != nil {
		return fmt.Errorf("install mem-write hook: %w", err)
	}

	return nil
}

func (c *Core) dispatchMemHook(kind byte, addr uint64, size int, value uint64) {
	c.hooksMu.RLock()
	hooks := c.memHooks
	c.hooksMu.RUnlock()

	for _, h := range hooks {
		h(c, kind, addr, size, value)
	}
}

// Close releases the underlying Unicorn context.
func (c *Core) Close() error {
	return c.mu.Close()
}

// LoadCode writes code at the code base.
func (c *Core) LoadCode(code []byte) error {
	return c.mu.MemWrite(CodeBase, code)
}

// MapRegion maps additional memory, used by the ELF loader for segments
// that fall outside the default layout.
func (c *Core) MapRegion(addr, size uint64) error {
	return c.mu.MemMap(addr, size)
}

// MemRead reads bytes from memory.
func (c *Core) MemRead(addr, size uint64) ([]byte, error) {
	return c.mu.MemRead(addr, size)
}

// MemWrite writes bytes to memory.
func (c *Core) MemWrite(addr uint64, data []byte) error {
	return c.mu.MemWrite(addr, data)
}

// MemReadU64 reads a uint64 from memory (little endian).
func (c *Core) MemReadU64(addr uint64) (uint64, error) {
	data, err := c.mu.MemRead(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// MemWriteU64 writes a uint64 to memory (little endian).
func (c *Core) MemWriteU64(addr, val uint64) error {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint64(data, val)
	return c.mu.MemWrite(addr, data)
}

// MemReadU32 reads a uint32 from memory (little endian).
func (c *Core) MemReadU32(addr uint64) (uint32, error) {
	data, err := c.mu.MemRead(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// MemWriteU32 writes a uint32 to memory (little endian).
func (c *Core) MemWriteU32(addr uint64, val uint32) error {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, val)
	return c.mu.MemWrite(addr, data)
}

// MemReadU16 reads a uint16 from memory (little endian).
func (c *Core) MemReadU16(addr uint64) (uint16, error) {
	data, err := c.mu.MemRead(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// MemWriteU16 writes a uint16 to memory (little endian).
func (c *Core) MemWriteU16(addr uint64, val uint16) error {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, val)
	return c.mu.MemWrite(addr, data)
}

// MemReadU8 reads a single byte from memory.
func (c *Core) MemReadU8(addr uint64) (uint8, error) {
	data, err := c.mu.MemRead(addr, 1)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

// MemWriteU8 writes a single byte to memory.
func (c *Core) MemWriteU8(addr uint64, val uint8) error {
	return c.mu.MemWrite(addr, []byte{val})
}

// MemReadString reads a null-terminated string from memory.
func (c *Core) MemReadString(addr uint64, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 4096
	}
	data, err := c.mu.MemRead(addr, uint64(maxLen))
	if err != nil {
		return "", err
	}
	for i, b := range data {
		if b == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// MemWriteString writes a null-terminated string to memory.
func (c *Core) MemWriteString(addr uint64, s string) error {
	data := append([]byte(s), 0)
	return c.mu.MemWrite(addr, data)
}

// RegRead reads a raw Unicorn register id.
func (c *Core) RegRead(reg int) (uint64, error) {
	return c.mu.RegRead(reg)
}

// RegWrite writes a raw Unicorn register id.
func (c *Core) RegWrite(reg int, val uint64) error {
	return c.mu.RegWrite(reg, val)
}

// X reads general-purpose register X0-X30.
func (c *Core) X(n int) uint64 {
	if n < 0 || n > 30 {
		return 0
	}
	val, _ := c.mu.RegRead(uc.ARM64_REG_X0 + n)
	return val
}

// SetX writes general-purpose register X0-X30.
func (c *Core) SetX(n int, val uint64) error {
	if n < 0 || n > 30 {
		return fmt.Errorf("invalid register X%d", n)
	}
	return c.mu.RegWrite(uc.ARM64_REG_X0+n, val)
}

// PC returns the program counter.
func (c *Core) PC() uint64 {
	pc, _ := c.mu.RegRead(uc.ARM64_REG_PC)
	return pc
}

// SetPC sets the program counter.
func (c *Core) SetPC(val uint64) error {
	return c.mu.RegWrite(uc.ARM64_REG_PC, val)
}

// SP returns the stack pointer.
func (c *Core) SP() uint64 {
	sp, _ := c.mu.RegRead(uc.ARM64_REG_SP)
	return sp
}

// SetSP sets the stack pointer.
func (c *Core) SetSP(val uint64) error {
	return c.mu.RegWrite(uc.ARM64_REG_SP, val)
}

// LR returns the link register.
func (c *Core) LR() uint64 {
	lr, _ := c.mu.RegRead(uc.ARM64_REG_LR)
	return lr
}

// SetLR sets the link register.
func (c *Core) SetLR(val uint64) error {
	return c.mu.RegWrite(uc.ARM64_REG_LR, val)
}

// CPSR returns the processor status register, the source of the
// synthetic flag-aggregate register exposed over the wire.
func (c *Core) CPSR() uint64 {
	v, _ := c.mu.RegRead(uc.ARM64_REG_CPSR)
	return v
}

// SetCPSR sets the processor status register.
func (c *Core) SetCPSR(val uint64) error {
	return c.mu.RegWrite(uc.ARM64_REG_CPSR, val)
}

// Malloc allocates memory from the heap (bump allocator). Panics if the
// heap is exhausted; that indicates a fundamental emulation problem, not
// a recoverable runtime condition.
func (c *Core) Malloc(size uint64) uint64 {
	size = (size + 15) &^ uint64(15)

	addr := c.heapPtr
	c.heapPtr += size

	if c.heapPtr >= HeapBase+HeapSize {
		panic("heap exhausted")
	}

	return addr
}

// HookCode adds a code hook called for every retired instruction.
func (c *Core) HookCode(fn CodeHookFunc) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.codeHooks = append(c.codeHooks, fn)
}

// HookMem adds a hook called for every memory access.
func (c *Core) HookMem(fn MemHookFunc) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()
	c.memHooks = append(c.memHooks, fn)
}

// Run starts emulation over [start, end).
func (c *Core) Run(start, end uint64) error {
	c.stopped = false
	return c.mu.Start(start, end)
}

// RunFrom starts emulation from an address with no fixed end, until
// something calls Stop.
func (c *Core) RunFrom(start uint64) error {
	c.stopped = false
	return c.mu.Start(start, 0)
}

// Stop halts emulation at the next instruction boundary.
func (c *Core) Stop() {
	c.stopped = true
	c.mu.Stop()
}

// ARM64 register constants (re-exported for convenience).
const (
	RegX0  = uc.ARM64_REG_X0
	RegX1  = uc.ARM64_REG_X1
	RegX2  = uc.ARM64_REG_X2
	RegX3  = uc.ARM64_REG_X3
	RegX4  = uc.ARM64_REG_X4
	RegX5  = uc.ARM64_REG_X5
	RegX6  = uc.ARM64_REG_X6
	RegX7  = uc.ARM64_REG_X7
	RegX8  = uc.ARM64_REG_X8
	RegX29 = uc.ARM64_REG_X29 // Frame pointer
	RegX30 = uc.ARM64_REG_X30 // Link register (same as LR)
	RegSP  = uc.ARM64_REG_SP
	RegPC  = uc.ARM64_REG_PC
	RegLR  = uc.ARM64_REG_LR
	RegCPSR = uc.ARM64_REG_CPSR
)
