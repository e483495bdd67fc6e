package tui

import (
	"fmt"

	"github.com/zboralski/vicemon/internal/wire"
)

// RegisterValue is one decoded REGISTER_INFO entry.
type RegisterValue struct {
	ID    uint8
	Value uint16
}

// CheckpointInfo mirrors monitorsrv.encodeCheckpointInfo's wire layout,
// decoded client-side for the checkpoint list pane.
type CheckpointInfo struct {
	Number      uint32
	StopOnHit   bool
	Enabled     bool
	Start       uint16
	End         uint16
	Temporary   bool
	Op          uint8
	HitCount    uint32
	IgnoreCount uint32
	HasCond     bool
	Memspace    uint8
}

// Ping round-trips CMD_PING, the connectivity check the status bar uses.
func (c *Client) Ping() error {
	resp, err := c.Send(wire.CmdPing, nil)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// ReadRegisters issues REGISTERS_GET for memspace and decodes the
// item_size(1)+reg_id(1)+reg_value(2) entries REGISTER_INFO carries.
func (c *Client) ReadRegisters(memspace uint8) ([]RegisterValue, error) {
	resp, err := c.Send(wire.CmdRegistersGet, []byte{memspace})
	if err != nil {
		return nil, err
	}
	if err := errorFromCode(resp.errorCode); err != nil {
		return nil, err
	}

	d := wire.NewDecoder(resp.body)
	count := d.U16()
	out := make([]RegisterValue, 0, count)
	for i := uint16(0); i < count; i++ {
		if d.Remaining() < 4 {
			break
		}
		_ = d.U8() // item_size
		id := d.U8()
		val := d.U16()
		out = append(out, RegisterValue{ID: id, Value: val})
	}
	return out, nil
}

// ReadMemory issues MEM_GET for a wire-relative address range.
func (c *Client) ReadMemory(memspace uint8, bank, start, end uint16) ([]byte, error) {
	body := wire.NewEncoder().U8(0).U16(start).U16(end).U8(memspace).U16(bank).Body()
	resp, err := c.Send(wire.CmdMemGet, body)
	if err != nil {
		return nil, err
	}
	if err := errorFromCode(resp.errorCode); err != nil {
		return nil, err
	}
	d := wire.NewDecoder(resp.body)
	n := d.U16()
	return d.Bytes(int(n)), nil
}

// WriteMemory issues MEM_SET for a wire-relative starting address.
func (c *Client) WriteMemory(memspace uint8, bank, start uint16, data []byte) error {
	end := start + uint16(len(data)) - 1
	body := wire.NewEncoder().U8(0).U16(start).U16(end).U8(memspace).U16(bank).Bytes(data).Body()
	resp, err := c.Send(wire.CmdMemSet, body)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// ListCheckpoints issues CHECKPOINT_LIST.
func (c *Client) ListCheckpoints() ([]CheckpointInfo, error) {
	resp, err := c.Send(wire.CmdCheckpointList, nil)
	if err != nil {
		return nil, err
	}
	if err := errorFromCode(resp.errorCode); err != nil {
		return nil, err
	}

	d := wire.NewDecoder(resp.body)
	count := d.U32()
	out := make([]CheckpointInfo, 0, count)
	for i := uint32(0); i < count; i++ {
		out = append(out, decodeCheckpointInfo(d))
	}
	return out, nil
}

// SetCheckpoint issues CHECKPOINT_SET with wire-relative start/end
// addresses (offset from CodeBase on the server side, see
// emulator.Machine.ReadMemory's doc comment).
func (c *Client) SetCheckpoint(start, end uint16, stop, enabled bool, op uint8, temporary bool) (CheckpointInfo, error) {
	body := wire.NewEncoder().
		U16(start).U16(end).
		U8(boolByte(stop)).U8(boolByte(enabled)).U8(op).U8(boolByte(temporary)).
		Body()
	resp, err := c.Send(wire.CmdCheckpointSet, body)
	if err != nil {
		return CheckpointInfo{}, err
	}
	if err := errorFromCode(resp.errorCode); err != nil {
		return CheckpointInfo{}, err
	}
	return decodeCheckpointInfo(wire.NewDecoder(resp.body)), nil
}

// DeleteCheckpoint issues CHECKPOINT_DELETE.
func (c *Client) DeleteCheckpoint(num uint32) error {
	resp, err := c.Send(wire.CmdCheckpointDelete, wire.NewEncoder().U32(num).Body())
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// ToggleCheckpoint issues CHECKPOINT_TOGGLE.
func (c *Client) ToggleCheckpoint(num uint32, enabled bool) error {
	body := wire.NewEncoder().U32(num).U8(boolByte(enabled)).Body()
	resp, err := c.Send(wire.CmdCheckpointToggle, body)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// Step issues ADVANCE_INSTRUCTIONS.
func (c *Client) Step(count uint16, stepOver bool) error {
	body := wire.NewEncoder().U8(boolByte(stepOver)).U16(count).Body()
	resp, err := c.Send(wire.CmdAdvanceInstructions, body)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// Reset issues RESET.
func (c *Client) Reset() error {
	resp, err := c.Send(wire.CmdReset, nil)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

// Exit issues EXIT, leaving the monitor resident but resuming execution.
func (c *Client) Exit() error {
	resp, err := c.Send(wire.CmdExit, nil)
	if err != nil {
		return err
	}
	return errorFromCode(resp.errorCode)
}

func decodeCheckpointInfo(d *wire.Decoder) CheckpointInfo {
	var cp CheckpointInfo
	cp.Number = d.U32()
	cp.StopOnHit = d.U8() != 0
	cp.Enabled = d.U8() != 0
	cp.Start = d.U16()
	cp.End = d.U16()
	cp.Temporary = d.U8() != 0
	cp.Op = d.U8()
	cp.HitCount = d.U32()
	cp.IgnoreCount = d.U32()
	cp.HasCond = d.U8() != 0
	cp.Memspace = d.U8()
	return cp
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func errorFromCode(code wire.ErrorCode) error {
	if code == wire.ErrOK {
		return nil
	}
	return fmt.Errorf("monitor error 0x%02x", uint8(code))
}
