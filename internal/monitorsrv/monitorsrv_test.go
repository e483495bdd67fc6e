package monitorsrv

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/zboralski/vicemon/internal/config"
	"github.com/zboralski/vicemon/internal/emulator"
	"github.com/zboralski/vicemon/internal/log"
	"github.com/zboralski/vicemon/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	m, err := emulator.NewMachine()
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return New(&config.Address{Scheme: "ip4", Host: "127.0.0.1", Port: 0}, m, log.NewNop(), "")
}

func cmd(requestID uint32, cmdType wire.CommandType, body []byte) *wire.Command {
	return &wire.Command{APIVersion: wire.APIVersion, RequestID: requestID, Type: cmdType, Body: body}
}

func TestDispatchPing(t *testing.T) {
	s := newTestServer(t)
	r := dispatch(s, cmd(1, wire.CmdPing, nil))
	if r.responseType != wire.RespPing || r.errorCode != wire.ErrOK {
		t.Fatalf("unexpected result: %+v", r)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	s := newTestServer(t)
	r := dispatch(s, cmd(1, wire.CommandType(0xf0), nil))
	if r.responseType != wire.RespInvalid || r.errorCode != wire.ErrInvalidParameter {
		t.Fatalf("unexpected result for unknown command: %+v", r)
	}
}

func TestHandleMemSetGetRoundTrip(t *testing.T) {
	s := newTestServer(t)

	// MEM_GET/MEM_SET addresses are wire-relative to the start of the
	// loaded program for the computer memspace (see
	// emulator.Machine.ReadMemory); 0x0000-0x0003 lands well within the
	// mapped code region regardless of where CodeBase itself sits.
	setBody := wire.NewEncoder().
		U8(0). // sidefx
		U16(0).
		U16(3).
		U8(uint8(emulator.MemspaceComputer)).
		U16(0).
		Bytes([]byte{0xde, 0xad, 0xbe, 0xef}).
		Body()
	setResult := dispatch(s, cmd(1, wire.CmdMemSet, setBody))
	if setResult.errorCode != wire.ErrOK {
		t.Fatalf("MEM_SET failed: %+v", setResult)
	}

	getBody := wire.NewEncoder().
		U8(0).
		U16(0).
		U16(3).
		U8(uint8(emulator.MemspaceComputer)).
		U16(0).
		Body()
	getResult := dispatch(s, cmd(2, wire.CmdMemGet, getBody))
	if getResult.errorCode != wire.ErrOK {
		t.Fatalf("MEM_GET failed: %+v", getResult)
	}

	d := wire.NewDecoder(getResult.body)
	n := d.U16()
	data := d.Bytes(int(n))
	if !bytes.Equal(data, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("expected roundtripped bytes, got %x", data)
	}
}

func TestHandleMemGetInvertedRange(t *testing.T) {
	s := newTestServer(t)
	// start(0x10) > end(0x00): an inverted range is a semantic validation
	// failure distinct from the body-length check, per spec.md's start>end
	// invariant on MEM_GET.
	body := wire.NewEncoder().U8(0).U16(0x10).U16(0x00).U8(uint8(emulator.MemspaceComputer)).U16(0).Body()
	r := dispatch(s, cmd(1, wire.CmdMemGet, body))
	if r.errorCode != wire.ErrInvalidParameter {
		t.Fatalf("expected InvalidParameter for start>end, got %+v", r)
	}
}

func TestHandleMemSetInvertedRange(t *testing.T) {
	s := newTestServer(t)
	body := wire.NewEncoder().
		U8(0).
		U16(0x10).
		U16(0x00).
		U8(uint8(emulator.MemspaceComputer)).
		U16(0).
		Bytes([]byte{0xff}).
		Body()
	r := dispatch(s, cmd(1, wire.CmdMemSet, body))
	if r.errorCode != wire.ErrInvalidParameter {
		t.Fatalf("expected InvalidParameter for start>end, got %+v", r)
	}
}

func TestHandleMemGetInvalidLength(t *testing.T) {
	s := newTestServer(t)
	r := dispatch(s, cmd(1, wire.CmdMemGet, []byte{1, 2, 3}))
	if r.responseType != wire.RespInvalid || r.errorCode != wire.ErrCmdInvalidLength {
		t.Fatalf("expected length error, got %+v", r)
	}
}

func TestHandleMemSetInvalidLength(t *testing.T) {
	s := newTestServer(t)
	// claims a 4-byte write but only supplies the 8-byte header, no data.
	body := wire.NewEncoder().U8(0).U16(0x1000).U16(0x1003).U8(0).U16(0).Body()
	r := dispatch(s, cmd(1, wire.CmdMemSet, body))
	if r.responseType != wire.RespInvalid || r.errorCode != wire.ErrCmdInvalidLength {
		t.Fatalf("expected length error, got %+v", r)
	}
}

func TestHandleCheckpointLifecycle(t *testing.T) {
	s := newTestServer(t)

	setBody := []byte{0x00, 0x10, 0x10, 0x10, 1, 1, byte(emulator.OpExec), 0}
	setResult := dispatch(s, cmd(1, wire.CmdCheckpointSet, setBody))
	if setResult.errorCode != wire.ErrOK {
		t.Fatalf("CHECKPOINT_SET failed: %+v", setResult)
	}
	num := wire.NewDecoder(setResult.body).U32()
	if num == 0 {
		t.Fatal("expected nonzero checkpoint number")
	}

	getBody := wire.NewEncoder().U32(num).Body()
	getResult := dispatch(s, cmd(2, wire.CmdCheckpointGet, getBody))
	if getResult.errorCode != wire.ErrOK {
		t.Fatalf("CHECKPOINT_GET failed: %+v", getResult)
	}

	toggleBody := wire.NewEncoder().U32(num).U8(0).Body()
	toggleResult := dispatch(s, cmd(3, wire.CmdCheckpointToggle, toggleBody))
	if toggleResult.errorCode != wire.ErrOK {
		t.Fatalf("CHECKPOINT_TOGGLE failed: %+v", toggleResult)
	}

	// CHECKPOINT_LIST writes one CHECKPOINT_INFO frame per checkpoint
	// directly to the connection (reusing the request's own id) before
	// dispatch's caller writes the CHECKPOINT_LIST terminator, so s.conn
	// must be a live pipe with a reader draining it concurrently.
	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	s.conn = serverSide

	infoFrames := make(chan []byte, 4)
	go func() {
		for {
			f, err := readFrame(clientSide)
			if err != nil {
				close(infoFrames)
				return
			}
			infoFrames <- f
		}
	}()

	var listResult handlerResult
	done := make(chan struct{})
	go func() {
		listResult = dispatch(s, cmd(4, wire.CmdCheckpointList, nil))
		close(done)
	}()

	infoFrame := <-infoFrames
	infoRequestID := binary.LittleEndian.Uint32(infoFrame[6:10])
	if infoRequestID != 4 {
		t.Fatalf("expected CHECKPOINT_INFO to carry the request's own id 4, got %d", infoRequestID)
	}
	if wire.ResponseType(infoFrame[10]) != wire.RespCheckpointInfo {
		t.Fatalf("expected RespCheckpointInfo, got 0x%x", infoFrame[10])
	}

	<-done
	s.conn = nil
	if listResult.errorCode != wire.ErrOK || listResult.responseType != wire.RespCheckpointList {
		t.Fatalf("CHECKPOINT_LIST terminator failed: %+v", listResult)
	}
	if count := wire.NewDecoder(listResult.body).U32(); count != 1 {
		t.Fatalf("expected 1 checkpoint listed, got %d", count)
	}

	delBody := wire.NewEncoder().U32(num).Body()
	delResult := dispatch(s, cmd(5, wire.CmdCheckpointDelete, delBody))
	if delResult.errorCode != wire.ErrOK {
		t.Fatalf("CHECKPOINT_DELETE failed: %+v", delResult)
	}

	missingResult := dispatch(s, cmd(6, wire.CmdCheckpointGet, getBody))
	if missingResult.errorCode != wire.ErrObjectMissing {
		t.Fatalf("expected ObjectMissing after delete, got %+v", missingResult)
	}
}

func TestHandleRegistersAvailableAndGet(t *testing.T) {
	s := newTestServer(t)

	nonSynthetic := emulator.NonSynthetic(emulator.ComputerRegisters())

	availResult := dispatch(s, cmd(1, wire.CmdRegistersAvailable, []byte{byte(emulator.MemspaceComputer)}))
	if availResult.errorCode != wire.ErrOK {
		t.Fatalf("REGISTERS_AVAILABLE failed: %+v", availResult)
	}
	d := wire.NewDecoder(availResult.body)
	availCount := d.U16()
	// Synthetic registers (FLAGS, HEAPPTR) are excluded from both the
	// count and the record stream, same as REGISTERS_GET.
	if int(availCount) != len(nonSynthetic) {
		t.Fatalf("expected %d available registers, got %d", len(nonSynthetic), availCount)
	}
	for _, want := range nonSynthetic {
		itemSize := d.U8()
		id := d.U8()
		size := d.U8()
		name := d.LString()
		wantItemSize := uint8(len(want.Name) + 3)
		if itemSize != wantItemSize || id != want.ID || size != uint8(want.Width) || name != want.Name {
			t.Fatalf("register record mismatch: got {item_size:%d id:%d size:%d name:%q}, want {item_size:%d id:%d size:%d name:%q}",
				itemSize, id, size, name, wantItemSize, want.ID, uint8(want.Width), want.Name)
		}
	}

	getResult := dispatch(s, cmd(2, wire.CmdRegistersGet, []byte{byte(emulator.MemspaceComputer)}))
	if getResult.errorCode != wire.ErrOK {
		t.Fatalf("REGISTERS_GET failed: %+v", getResult)
	}
	getCount := wire.NewDecoder(getResult.body).U16()
	if int(getCount) != len(nonSynthetic) {
		t.Fatalf("expected non-synthetic count, got %d", getCount)
	}
}

func TestHandleRegistersSetRejectsSynthetic(t *testing.T) {
	s := newTestServer(t)
	// one register entry: item_size(1) reg_id(FLAGS, synthetic) value(2)
	body := wire.NewEncoder().
		U8(byte(emulator.MemspaceComputer)).
		U16(1).
		U8(3).
		U8(emulator.RegIDFlags).
		U16(0).
		Body()
	r := dispatch(s, cmd(1, wire.CmdRegistersSet, body))
	if r.errorCode != wire.ErrInvalidParameter {
		t.Fatalf("expected InvalidParameter writing a synthetic register, got %+v", r)
	}
}

func TestHandleBanksAvailable(t *testing.T) {
	s := newTestServer(t)
	r := dispatch(s, cmd(1, wire.CmdBanksAvailable, []byte{byte(emulator.MemspaceComputer)}))
	if r.errorCode != wire.ErrOK {
		t.Fatalf("BANKS_AVAILABLE failed: %+v", r)
	}

	d := wire.NewDecoder(r.body)
	if count := d.U16(); count != 1 {
		t.Fatalf("expected 1 bank for computer memspace, got %d", count)
	}
	// record layout: item_size(1) bank_id(2) name_len(1) name, item_size
	// = len(name)+3.
	itemSize := d.U8()
	bankID := d.U16()
	name := d.LString()
	if wantSize := uint8(len("cpu") + 3); itemSize != wantSize || bankID != 0 || name != "cpu" {
		t.Fatalf("bank record mismatch: got {item_size:%d id:%d name:%q}, want {item_size:%d id:0 name:\"cpu\"}",
			itemSize, bankID, name, wantSize)
	}
}

func TestHandleQuitClosesAfterResponse(t *testing.T) {
	s := newTestServer(t)
	r := dispatch(s, cmd(1, wire.CmdQuit, nil))
	if r.errorCode != wire.ErrOK {
		t.Fatalf("QUIT failed: %+v", r)
	}
	if !s.closeAfterResponse {
		t.Fatal("expected closeAfterResponse set after QUIT")
	}
}

// buildClientFrame constructs a request frame exactly as a debugger
// client would, independent of the server's own encoder, so the
// end-to-end test below doesn't validate the wire package against
// itself.
func buildClientFrame(requestID uint32, cmdType wire.CommandType, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(wire.STX)
	buf.WriteByte(wire.APIVersion)

	bodyLength := uint32(wire.RemainingHeaderSize + len(body))
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], bodyLength)
	buf.Write(lenBuf[:])

	var reqBuf [4]byte
	binary.LittleEndian.PutUint32(reqBuf[:], requestID)
	buf.Write(reqBuf[:])

	buf.WriteByte(byte(cmdType))
	buf.Write(body)
	return buf.Bytes()
}

func TestServeEndToEndPing(t *testing.T) {
	s := newTestServer(t)

	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.handleConnection(ctx, serverConn)
		close(done)
	}()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))

	// net.Pipe is synchronous and unbuffered: the server's Write of the
	// REGISTER_INFO/STOPPED event pair blocks until something reads it, so
	// frames must be drained from a separate goroutine rather than after
	// writing the request (which would deadlock both ends on each other's
	// pending Write).
	frames := make(chan []byte, 8)
	go func() {
		for {
			f, err := readFrame(clientConn)
			if err != nil {
				close(frames)
				return
			}
			frames <- f
		}
	}()

	<-frames // REGISTER_INFO
	<-frames // STOPPED

	if _, err := clientConn.Write(buildClientFrame(7, wire.CmdPing, nil)); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	resp := <-frames
	gotRequestID := binary.LittleEndian.Uint32(resp[6:10])
	if gotRequestID != 7 {
		t.Fatalf("expected response for request 7, got %d", gotRequestID)
	}
	if wire.ResponseType(resp[10]) != wire.RespPing {
		t.Fatalf("expected RespPing, got 0x%x", resp[10])
	}

	clientConn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConnection did not return after client closed")
	}
}

func readFrame(conn net.Conn) ([]byte, error) {
	head := make([]byte, 6)
	if _, err := readFull(conn, head); err != nil {
		return nil, err
	}
	bodyLength := binary.LittleEndian.Uint32(head[2:6])
	rest := make([]byte, bodyLength)
	if _, err := readFull(conn, rest); err != nil {
		return nil, err
	}
	return append(head, rest...), nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
