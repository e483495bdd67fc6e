package emulator

// RegisterWidth is the wire size of a register value, in bits.
type RegisterWidth uint8

const (
	Width8  RegisterWidth = 8
	Width16 RegisterWidth = 16
	Width32 RegisterWidth = 32
	Width64 RegisterWidth = 64
)

// RegisterDescriptor names one register exposed over REGISTERS_AVAILABLE
// / REGISTERS_GET / REGISTERS_SET. Synthetic registers aggregate or shadow
// other state (CPU flags, a memory location) rather than naming a single
// physical register; they must never appear in a REGISTERS_SET request,
// and they are always filtered from the wire (see NonSynthetic).
type RegisterDescriptor struct {
	ID        uint8
	Name      string
	Width     RegisterWidth
	Synthetic bool
}

// Computer-memspace (memspace 0) register ids, following the ordering
// VICE itself assigns to ARM64-equivalent general-purpose registers plus
// the two synthetic entries this server adds: an aggregate flags view
// and a heap-pointer shadow register useful for scripted conditions.
const (
	RegIDX0 uint8 = iota
	RegIDX1
	RegIDX2
	RegIDX3
	RegIDX4
	RegIDX5
	RegIDX6
	RegIDX7
	RegIDX8
	RegIDPC
	RegIDSP
	RegIDLR
	RegIDFlags  // synthetic: aggregate CPSR flag view (N Z C V)
	RegIDHeapPtr // synthetic: shadows the bump allocator's heap pointer
)

// ComputerRegisters lists the full register surface for memspace 0.
func ComputerRegisters() []RegisterDescriptor {
	return []RegisterDescriptor{
		{RegIDX0, "X0", Width64, false},
		{RegIDX1, "X1", Width64, false},
		{RegIDX2, "X2", Width64, false},
		{RegIDX3, "X3", Width64, false},
		{RegIDX4, "X4", Width64, false},
		{RegIDX5, "X5", Width64, false},
		{RegIDX6, "X6", Width64, false},
		{RegIDX7, "X7", Width64, false},
		{RegIDX8, "X8", Width64, false},
		{RegIDPC, "PC", Width64, false},
		{RegIDSP, "SP", Width64, false},
		{RegIDLR, "LR", Width64, false},
		{RegIDFlags, "FLAGS", Width32, true},
		{RegIDHeapPtr, "HEAPPTR", Width64, true},
	}
}

// Drive-memspace register ids (memspaces 1-4).
const (
	DriveRegIDPC uint8 = iota
	DriveRegIDTrack
	DriveRegIDSector
	DriveRegIDStatus
)

// DriveRegisters lists the register surface for drive memspaces.
func DriveRegisters() []RegisterDescriptor {
	return []RegisterDescriptor{
		{DriveRegIDPC, "PC", Width16, false},
		{DriveRegIDTrack, "TRACK", Width8, false},
		{DriveRegIDSector, "SECTOR", Width8, false},
		{DriveRegIDStatus, "STATUS", Width8, true},
	}
}

// RegistersForMemspace returns the descriptor list for a memspace.
func RegistersForMemspace(memspace int) []RegisterDescriptor {
	if memspace == MemspaceComputer {
		return ComputerRegisters()
	}
	return DriveRegisters()
}

// NonSynthetic filters out synthetic registers, the view REGISTERS_GET,
// REGISTERS_AVAILABLE and the REGISTER_INFO event put on the wire.
func NonSynthetic(descs []RegisterDescriptor) []RegisterDescriptor {
	out := make([]RegisterDescriptor, 0, len(descs))
	for _, d := range descs {
		if !d.Synthetic {
			out = append(out, d)
		}
	}
	return out
}

// ReadComputerRegister reads one register (by id) from a Core, computing
// synthetic values on the fly.
func ReadComputerRegister(c *Core, id uint8) (uint64, bool) {
	switch id {
	case RegIDX0, RegIDX1, RegIDX2, RegIDX3, RegIDX4, RegIDX5, RegIDX6, RegIDX7, RegIDX8:
		return c.X(int(id)), true
	case RegIDPC:
		return c.PC(), true
	case RegIDSP:
		return c.SP(), true
	case RegIDLR:
		return c.LR(), true
	case RegIDFlags:
		return c.CPSR() & 0xF0000000, true // N Z C V occupy the top nibble
	case RegIDHeapPtr:
		return c.heapPtr, true
	}
	return 0, false
}

// WriteComputerRegister writes one non-synthetic register on a Core.
func WriteComputerRegister(c *Core, id uint8, val uint64) error {
	switch id {
	case RegIDX0, RegIDX1, RegIDX2, RegIDX3, RegIDX4, RegIDX5, RegIDX6, RegIDX7, RegIDX8:
		return c.SetX(int(id), val)
	case RegIDPC:
		return c.SetPC(val)
	case RegIDSP:
		return c.SetSP(val)
	case RegIDLR:
		return c.SetLR(val)
	}
	return errInvalidRegister(id)
}

// ReadDriveRegister reads one register from a DriveCore.
func ReadDriveRegister(d *DriveCore, id uint8) (uint64, bool) {
	switch id {
	case DriveRegIDPC:
		return d.PC(), true
	case DriveRegIDTrack:
		v, _ := d.RegRead(DriveRegTrack)
		return v, true
	case DriveRegIDSector:
		v, _ := d.RegRead(DriveRegSector)
		return v, true
	case DriveRegIDStatus:
		v, _ := d.RegRead(DriveRegStatus)
		return v, true
	}
	return 0, false
}

// WriteDriveRegister writes one non-synthetic register on a DriveCore.
func WriteDriveRegister(d *DriveCore, id uint8, val uint64) error {
	switch id {
	case DriveRegIDPC:
		return d.SetPC(val)
	case DriveRegIDTrack:
		return d.RegWrite(DriveRegTrack, val)
	case DriveRegIDSector:
		return d.RegWrite(DriveRegSector, val)
	}
	return errInvalidRegister(id)
}

type invalidRegisterError uint8

func (e invalidRegisterError) Error() string {
	return "invalid or read-only register id"
}

func errInvalidRegister(id uint8) error {
	return invalidRegisterError(id)
}
