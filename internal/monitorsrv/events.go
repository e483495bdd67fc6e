package monitorsrv

import (
	"github.com/zboralski/vicemon/internal/emulator"
	"github.com/zboralski/vicemon/internal/wire"
)

// onEnterMonitor marks the machine resident and emits the REGISTER_INFO
// + STOPPED event pair a monitor client expects the instant synchronous
// commands become valid, per the session state machine's Connected ->
// MonitorResident transition.
func (s *Server) onEnterMonitor() {
	if s.machine.EnteredMonitor() {
		return // already resident, nothing changed
	}
	s.emitRegisterInfo()
	s.emitEvent(wire.RespStopped, wire.NewEncoder().U16(uint16(s.machine.Core.PC())).Body())
}

// onLeaveMonitor marks the machine no longer resident and emits RESUMED,
// mirroring EXIT/QUIT's effect and a plain disconnect.
func (s *Server) onLeaveMonitor() {
	if !s.machine.LeftMonitor() {
		return // was already not resident
	}
	s.emitEvent(wire.RespResumed, nil)
}

// leaveMonitor is the handler-facing entry point EXIT/QUIT call to
// resume the emulated CPU without waiting for the connection to close.
func (s *Server) leaveMonitor() {
	s.onLeaveMonitor()
}

// emitRegisterInfo sends the computer memspace's current non-synthetic
// register values, the same encoding REGISTERS_GET's response uses.
func (s *Server) emitRegisterInfo() {
	descs := emulator.NonSynthetic(s.machine.Registers(emulator.MemspaceComputer))
	enc := wire.NewEncoder().U16(uint16(len(descs)))
	for _, d := range descs {
		val, err := s.machine.ReadRegister(emulator.MemspaceComputer, d.ID)
		if err != nil {
			continue
		}
		enc.U8(3).U8(d.ID).U16(uint16(val))
	}
	s.emitEvent(wire.RespRegisterInfo, enc.Body())
}

// emitJam sends a JAM event carrying the current PC (u16), for when the
// computer core hits an illegal instruction or otherwise halts
// unexpectedly during a run.
func (s *Server) emitJam() {
	s.machine.Jam()
	s.emitEvent(wire.RespJam, wire.NewEncoder().U16(uint16(s.machine.Core.PC())).Body())
}

// emitEvent writes an unsolicited event frame to the current connection,
// if one is attached. Errors are not reported up: an event is best-effort
// by nature (the client will notice the dead connection on its own next
// read/write).
func (s *Server) emitEvent(responseType wire.ResponseType, body []byte) {
	if s.conn == nil {
		return
	}
	_ = wire.Event(s.conn, responseType, body)
}
