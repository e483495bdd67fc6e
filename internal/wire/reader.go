package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxBodyLength is the largest body_length ReadCommand accepts: the
// header bytes plus a MEM_SET covering the full 64KB wire address range.
const MaxBodyLength = RemainingHeaderSize + 8 + 0x10000

// FrameReader reassembles length-framed requests off a byte stream,
// resyncing on STX the way original_source's monitor_binary_get_command_line
// does: a byte that isn't STX where a frame should start is simply
// discarded, one byte at a time, until STX turns up.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps an io.Reader for frame-at-a-time decoding.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// ReadCommand blocks until a full, well-formed frame arrives and returns
// its decoded Command. Read errors (including io.EOF on a closed
// connection) propagate to the caller unchanged. A frame whose
// api_version doesn't match produces no response at all (spec §7's
// failure table: "Unknown api_version -> Discard byte, continue
// resync") — only the STX byte is dropped, and ReadCommand resumes
// STX resync in the same call starting at the byte it read as the
// version (so a version byte that is itself STX starts the next frame),
// never surfacing that frame to the caller. A body_length below
// RemainingHeaderSize or above MaxBodyLength is returned as an error
// without allocating or reading the body.
func (f *FrameReader) ReadCommand() (*Command, error) {
	for {
		if err := f.syncToSTX(); err != nil {
			return nil, err
		}

		apiVersion, err := f.r.ReadByte()
		if err != nil {
			return nil, err
		}
		if apiVersion != APIVersion {
			_ = f.r.UnreadByte()
			continue
		}

		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(f.r, lenBuf); err != nil {
			return nil, err
		}
		bodyLength := binary.LittleEndian.Uint32(lenBuf)
		if bodyLength < RemainingHeaderSize || bodyLength > MaxBodyLength {
			return nil, fmt.Errorf("wire: body_length %d outside [%d, %d]", bodyLength, RemainingHeaderSize, MaxBodyLength)
		}

		// bodyLength already counts RemainingHeaderSize (request_id+command_type)
		// plus the command body, per the wire format's definition of the field.
		rest := make([]byte, int(bodyLength))
		if _, err := io.ReadFull(f.r, rest); err != nil {
			return nil, err
		}

		requestID := binary.LittleEndian.Uint32(rest[0:4])
		cmdType := CommandType(rest[4])
		body := rest[RemainingHeaderSize:]

		return &Command{
			APIVersion: apiVersion,
			RequestID:  requestID,
			Type:       cmdType,
			Body:       body,
		}, nil
	}
}

// syncToSTX discards bytes until it has consumed one STX byte.
func (f *FrameReader) syncToSTX() error {
	for {
		b, err := f.r.ReadByte()
		if err != nil {
			return err
		}
		if b == STX {
			return nil
		}
	}
}
