// Package monitorsrv implements the session state machine and the 20
// command handlers of the binary remote monitor protocol (spec.md §4.5),
// dispatching decoded wire.Command values against an emulator.Machine.
package monitorsrv

import (
	"fmt"

	"github.com/zboralski/vicemon/internal/condition"
	"github.com/zboralski/vicemon/internal/emulator"
	"github.com/zboralski/vicemon/internal/wire"
)

// handlerResult is what every handler returns: the response_type/
// error_code/body triple Respond needs. There is no Go error path:
// handlers report malformed bodies themselves through errorCode
// (ErrCmdInvalidLength/ErrInvalidParameter).
type handlerResult struct {
	responseType wire.ResponseType
	errorCode    wire.ErrorCode
	body         []byte
}

type handlerFunc func(s *Server, cmd *wire.Command) handlerResult

// dispatchTable maps each known command to its handler. Built once at
// init time, modeled on the teacher's self-registering stub registry
// (map[string]*StubDef) but keyed by command byte instead of symbol
// name, since wire commands are a closed, fixed set rather than an
// open-ended plugin surface.
var dispatchTable = map[wire.CommandType]handlerFunc{
	wire.CmdPing:                handlePing,
	wire.CmdMemGet:              handleMemGet,
	wire.CmdMemSet:              handleMemSet,
	wire.CmdCheckpointGet:       handleCheckpointGet,
	wire.CmdCheckpointSet:       handleCheckpointSet,
	wire.CmdCheckpointDelete:    handleCheckpointDelete,
	wire.CmdCheckpointList:      handleCheckpointList,
	wire.CmdCheckpointToggle:    handleCheckpointToggle,
	wire.CmdConditionSet:        handleConditionSet,
	wire.CmdRegistersGet:        handleRegistersGet,
	wire.CmdRegistersSet:        handleRegistersSet,
	wire.CmdAdvanceInstructions: handleAdvanceInstructions,
	wire.CmdKeyboardFeed:        handleKeyboardFeed,
	wire.CmdExecuteUntilReturn:  handleExecuteUntilReturn,
	wire.CmdExit:                handleExit,
	wire.CmdQuit:                handleQuit,
	wire.CmdReset:               handleReset,
	wire.CmdAutostart:           handleAutostart,
	wire.CmdBanksAvailable:      handleBanksAvailable,
	wire.CmdRegistersAvailable:  handleRegistersAvailable,
}

// dispatch runs a decoded command through the table, answering unknown
// commands with INVALID_PARAMETER per spec.md §4.5's dispatch rule.
func dispatch(s *Server, cmd *wire.Command) handlerResult {
	h, ok := dispatchTable[cmd.Type]
	if !ok {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrInvalidParameter}
	}
	return h(s, cmd)
}

func handlePing(s *Server, cmd *wire.Command) handlerResult {
	return handlerResult{responseType: wire.RespPing, errorCode: wire.ErrOK}
}

// handleMemGet implements MEM_GET. original_source's length check is
// `command->length < 8`, too permissive on its own terms (it says nothing
// about start/end ordering) and preserved exactly as-is per spec.md's
// Open Question; separately, spec.md §8 invariant 8 requires address
// inversion (start > end) to fail with INVALID_PARAMETER, which this
// handler checks explicitly after the length gate.
func handleMemGet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 8 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}

	d := wire.NewDecoder(cmd.Body)
	// sidefx is ignored: a computer-memspace read never triggers
	// checkpoints, while a drive-memspace read always runs the drive's
	// memory hooks, so matching load checkpoints count it as a hit.
	_ = d.U8()
	start := d.U16()
	end := d.U16()
	memspace := int(d.U8())
	bank := d.U16()

	if !s.machine.IsValidMemspace(memspace) {
		return handlerResult{responseType: wire.RespMemGet, errorCode: wire.ErrInvalidMemspace}
	}
	// spec.md §8 invariant 8: start > end is a semantic validation failure
	// (INVALID_PARAMETER), distinct from the body-length check above — the
	// "too permissive" Open Question is about the length check only, not
	// about accepting an inverted range.
	if end < start {
		return handlerResult{responseType: wire.RespMemGet, errorCode: wire.ErrInvalidParameter}
	}
	length := uint64(end-start) + 1

	data, err := s.machine.ReadMemory(memspace, bank, uint64(start), length)
	if err != nil {
		return handlerResult{responseType: wire.RespMemGet, errorCode: wire.ErrCmdFailure}
	}

	body := wire.NewEncoder().U16(uint16(len(data))).Bytes(data).Body()
	return handlerResult{responseType: wire.RespMemGet, errorCode: wire.ErrOK, body: body}
}

// handleMemSet implements MEM_SET. Unlike MEM_GET, original_source
// checks `command->length < length + header_size(8)` — i.e. it demands
// the body actually contain as many bytes as start/end imply. Preserved
// exactly; this is the asymmetry spec.md calls out as an Open Question,
// resolved by reading the original source directly.
func handleMemSet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 8 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}

	d := wire.NewDecoder(cmd.Body)
	_ = d.U8() // sidefx
	start := d.U16()
	end := d.U16()
	memspace := int(d.U8())
	bank := d.U16()

	// spec.md §8 invariant 8: address inversion is INVALID_PARAMETER, not a
	// length failure — checked before the length arithmetic below so an
	// inverted range never reaches the (length-dependent) body size check.
	if end < start {
		return handlerResult{responseType: wire.RespMemSet, errorCode: wire.ErrInvalidParameter}
	}
	length := uint64(end-start) + 1

	if uint64(len(cmd.Body)) < 8+length {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}

	if !s.machine.IsValidMemspace(memspace) {
		return handlerResult{responseType: wire.RespMemSet, errorCode: wire.ErrInvalidMemspace}
	}

	data := d.Bytes(int(length))
	if err := s.machine.WriteMemory(memspace, bank, uint64(start), data); err != nil {
		return handlerResult{responseType: wire.RespMemSet, errorCode: wire.ErrCmdFailure}
	}

	return handlerResult{responseType: wire.RespMemSet, errorCode: wire.ErrOK}
}

func encodeCheckpointInfo(cp *emulator.Checkpoint) []byte {
	var conditionFlag uint8
	if cp.Condition != "" {
		conditionFlag = 1
	}
	var temp uint8
	if cp.Temporary {
		temp = 1
	}
	var enabled uint8
	if cp.Enabled {
		enabled = 1
	}
	var stop uint8
	if cp.StopOnHit {
		stop = 1
	}

	return wire.NewEncoder().
		U32(cp.Number).
		U8(stop).
		U8(enabled).
		U16(uint16(cp.StartAddr)).
		U16(uint16(cp.EndAddr)).
		U8(temp).
		U8(uint8(cp.Op)).
		U32(cp.HitCount).
		U32(cp.IgnoreCount).
		U8(conditionFlag).
		U8(uint8(cp.Memspace)).
		Body()
}

func handleCheckpointGet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 4 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	num := wire.NewDecoder(cmd.Body).U32()

	cp := s.machine.Checkpoints.Find(num)
	if cp == nil {
		return handlerResult{responseType: wire.RespCheckpointInfo, errorCode: wire.ErrObjectMissing}
	}
	return handlerResult{responseType: wire.RespCheckpointInfo, errorCode: wire.ErrOK, body: encodeCheckpointInfo(cp)}
}

// handleCheckpointSet implements CHECKPOINT_SET. The body layout —
// start(0-1) end(2-3) stop(4) enabled(5) op(6) temporary(7), 8 bytes
// total — was the second Open Question spec.md named; resolved exactly
// against original_source's mon_breakpoint_add_checkpoint call and the
// `if (!body[5]) disable` guard around it. Preserved byte-for-byte.
func handleCheckpointSet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 8 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}

	body := cmd.Body
	start := uint16(body[0]) | uint16(body[1])<<8
	end := uint16(body[2]) | uint16(body[3])<<8
	stop := body[4] != 0
	enabled := body[5] != 0
	op := emulator.CheckpointOp(body[6])
	temporary := body[7] != 0

	// start/end are wire-relative, same convention as MEM_GET/MEM_SET (see
	// emulator.Machine.ReadMemory): offset by CodeBase so a breakpoint set
	// at the address a client just read memory from actually traps there.
	cp := s.machine.Checkpoints.Add(emulator.Checkpoint{
		Memspace:  emulator.MemspaceComputer,
		StartAddr: emulator.CodeBase + uint64(start),
		EndAddr:   emulator.CodeBase + uint64(end),
		Op:        op,
		StopOnHit: stop,
		Enabled:   enabled,
		Temporary: temporary,
	})

	return handlerResult{responseType: wire.RespCheckpointInfo, errorCode: wire.ErrOK, body: encodeCheckpointInfo(cp)}
}

func handleCheckpointDelete(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 4 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	num := wire.NewDecoder(cmd.Body).U32()

	if !s.machine.Checkpoints.Delete(num) {
		return handlerResult{responseType: wire.RespCheckpointDelete, errorCode: wire.ErrObjectMissing}
	}
	return handlerResult{responseType: wire.RespCheckpointDelete, errorCode: wire.ErrOK}
}

// handleCheckpointList implements CHECKPOINT_LIST. spec.md §4.5/§9 and
// seed scenario S5 require one CHECKPOINT_INFO response per checkpoint —
// reusing the request's own id, not the event id — followed by a single
// CHECKPOINT_LIST response whose body is the count. Every other handler
// returns its single handlerResult for dispatch to write; this one writes
// the N CHECKPOINT_INFO frames itself and returns only the terminator.
func handleCheckpointList(s *Server, cmd *wire.Command) handlerResult {
	cps := s.machine.Checkpoints.List()

	for _, cp := range cps {
		if err := wire.Respond(s.conn, cmd.RequestID, wire.RespCheckpointInfo, wire.ErrOK, encodeCheckpointInfo(cp)); err != nil {
			break
		}
	}

	body := wire.NewEncoder().U32(uint32(len(cps))).Body()
	return handlerResult{responseType: wire.RespCheckpointList, errorCode: wire.ErrOK, body: body}
}

func handleCheckpointToggle(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 5 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	d := wire.NewDecoder(cmd.Body)
	num := d.U32()
	enabled := d.U8() != 0

	if !s.machine.Checkpoints.Toggle(num, enabled) {
		return handlerResult{responseType: wire.RespCheckpointToggle, errorCode: wire.ErrObjectMissing}
	}
	return handlerResult{responseType: wire.RespCheckpointToggle, errorCode: wire.ErrOK}
}

// handleConditionSet implements CONDITION_SET. original_source builds a
// "cond N if ( <expr> )" string and forwards it whole to the textual
// monitor's expression parser (spec.md §6.4's parse_and_execute
// collaborator, out of scope here). This rewrite compiles <expr>
// directly with internal/condition's goja-backed evaluator instead.
func handleConditionSet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 5 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	d := wire.NewDecoder(cmd.Body)
	num := d.U32()
	expr := d.LString()

	cp := s.machine.Checkpoints.Find(num)
	if cp == nil {
		return handlerResult{responseType: wire.RespConditionSet, errorCode: wire.ErrObjectMissing}
	}

	evaluator, err := condition.Compile(expr, s.machine, 0)
	if err != nil {
		return handlerResult{responseType: wire.RespConditionSet, errorCode: wire.ErrInvalidParameter}
	}

	s.machine.Checkpoints.SetCondition(num, expr, evaluator)
	return handlerResult{responseType: wire.RespConditionSet, errorCode: wire.ErrOK}
}

func handleRegistersGet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 1 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	memspace := int(cmd.Body[0])
	if !s.machine.IsValidMemspace(memspace) {
		return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrInvalidMemspace}
	}

	descs := emulator.NonSynthetic(s.machine.Registers(memspace))
	type record struct {
		id  uint8
		val uint64
	}
	records := make([]record, 0, len(descs))
	for _, d := range descs {
		val, err := s.machine.ReadRegister(memspace, d.ID)
		if err != nil {
			return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrCmdFailure}
		}
		records = append(records, record{id: d.ID, val: val})
	}

	enc := wire.NewEncoder().U16(uint16(len(records)))
	for _, r := range records {
		enc.U8(3). // item_size: reg_id(1) + reg_value(2)
				U8(r.id).
				U16(uint16(r.val))
	}
	return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrOK, body: enc.Body()}
}

func handleRegistersSet(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 3 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	d := wire.NewDecoder(cmd.Body)
	memspace := int(d.U8())
	count := d.U16()

	if !s.machine.IsValidMemspace(memspace) {
		return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrInvalidMemspace}
	}

	for i := uint16(0); i < count; i++ {
		if d.Remaining() < 4 {
			return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
		}
		_ = d.U8() // item_size
		regID := d.U8()
		val := d.U16()
		if err := s.machine.WriteRegister(memspace, regID, uint64(val)); err != nil {
			return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrInvalidParameter}
		}
	}

	return handlerResult{responseType: wire.RespRegisterInfo, errorCode: wire.ErrOK}
}

func handleAdvanceInstructions(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 3 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	d := wire.NewDecoder(cmd.Body)
	stepOver := d.U8() != 0
	count := d.U16()

	if err := s.machine.StepInstructions(int(count), stepOver); err != nil {
		s.emitJam()
		return handlerResult{responseType: wire.RespAdvanceInstructions, errorCode: wire.ErrCmdFailure}
	}
	return handlerResult{responseType: wire.RespAdvanceInstructions, errorCode: wire.ErrOK}
}

func handleKeyboardFeed(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 1 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	text := wire.NewDecoder(cmd.Body).LString()

	if err := s.machine.KeyboardFeed(text); err != nil {
		return handlerResult{responseType: wire.RespKeyboardFeed, errorCode: wire.ErrCmdFailure}
	}
	return handlerResult{responseType: wire.RespKeyboardFeed, errorCode: wire.ErrOK}
}

func handleExecuteUntilReturn(s *Server, cmd *wire.Command) handlerResult {
	if err := s.machine.InstructionsUntilReturn(); err != nil {
		s.emitJam()
		return handlerResult{responseType: wire.RespExecuteUntilReturn, errorCode: wire.ErrCmdFailure}
	}
	return handlerResult{responseType: wire.RespExecuteUntilReturn, errorCode: wire.ErrOK}
}

func handleExit(s *Server, cmd *wire.Command) handlerResult {
	s.leaveMonitor()
	return handlerResult{responseType: wire.RespExit, errorCode: wire.ErrOK}
}

func handleQuit(s *Server, cmd *wire.Command) handlerResult {
	s.leaveMonitor()
	s.closeAfterResponse = true
	return handlerResult{responseType: wire.RespQuit, errorCode: wire.ErrOK}
}

func handleReset(s *Server, cmd *wire.Command) handlerResult {
	if err := s.machine.Reset(); err != nil {
		return handlerResult{responseType: wire.RespReset, errorCode: wire.ErrCmdFailure}
	}
	return handlerResult{responseType: wire.RespReset, errorCode: wire.ErrOK}
}

func handleAutostart(s *Server, cmd *wire.Command) handlerResult {
	if len(cmd.Body) < 4 {
		return handlerResult{responseType: wire.RespInvalid, errorCode: wire.ErrCmdInvalidLength}
	}
	d := wire.NewDecoder(cmd.Body)
	run := d.U8() != 0
	fileIndex := d.U16()
	filename := d.LString()

	if err := s.machine.Autostart(s.autostartPath(filename), run, fileIndex, filename); err != nil {
		return handlerResult{responseType: wire.RespAutostart, errorCode: wire.ErrCmdFailure}
	}
	return handlerResult{responseType: wire.RespAutostart, errorCode: wire.ErrOK}
}

func handleBanksAvailable(s *Server, cmd *wire.Command) handlerResult {
	memspace := emulator.MemspaceComputer
	if len(cmd.Body) >= 1 {
		memspace = int(cmd.Body[0])
	}

	banks := s.machine.BankList(memspace)
	enc := wire.NewEncoder().U16(uint16(len(banks)))
	for _, b := range banks {
		// item_size = bank_id(2) + name_len byte(1) + name = len(name)+3,
		// per original_source's write_uint16(count)/per-bank
		// *response_cursor = item_size convention.
		itemSize := uint8(len(b.Name) + 3)
		enc.U8(itemSize).U16(b.ID).LString(b.Name)
	}
	return handlerResult{responseType: wire.RespBanksAvailable, errorCode: wire.ErrOK, body: enc.Body()}
}

// handleRegistersAvailable implements REGISTERS_AVAILABLE. Record layout
// is item_size(u8) id(u8) size_bits(u8) name_len(u8) name, matching
// original_source's monitor_binary_process_registers_available exactly —
// synthetic registers are excluded from both the count and the record
// stream (ignore_fake_register), and there is no flag byte for
// syntheticness on the wire.
func handleRegistersAvailable(s *Server, cmd *wire.Command) handlerResult {
	memspace := emulator.MemspaceComputer
	if len(cmd.Body) >= 1 {
		memspace = int(cmd.Body[0])
	}
	if !s.machine.IsValidMemspace(memspace) {
		return handlerResult{responseType: wire.RespRegistersAvailable, errorCode: wire.ErrInvalidMemspace}
	}

	descs := emulator.NonSynthetic(s.machine.Registers(memspace))
	enc := wire.NewEncoder().U16(uint16(len(descs)))
	for _, d := range descs {
		// item_size = id(1) + size_bits(1) + name_len byte(1) + name =
		// len(name)+3.
		itemSize := uint8(len(d.Name) + 3)
		enc.U8(itemSize).U8(d.ID).U8(uint8(d.Width)).LString(d.Name)
	}
	return handlerResult{responseType: wire.RespRegistersAvailable, errorCode: wire.ErrOK, body: enc.Body()}
}

// autostartPath resolves the filename argument against any search root
// configured on the server, falling back to treating it as a direct
// filesystem path — this server has no disk-image/directory collaborator
// (out of scope per spec.md §6.4), so it can only load a program that is
// itself a loadable ELF on disk.
func (s *Server) autostartPath(filename string) string {
	if s.programRoot == "" {
		return filename
	}
	return fmt.Sprintf("%s/%s", s.programRoot, filename)
}
