// Package tui implements the bubbletea debugger client ("galago monitor
// <addr>"): a register pane, a memory hex viewer, a checkpoint list, and
// a command line for issuing wire protocol commands interactively.
package tui

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/zboralski/vicemon/internal/wire"
)

// Client is a thin synchronous wire protocol client: one request
// outstanding at a time, with incoming events delivered to a separate
// channel so the UI can render them without racing command responses.
type Client struct {
	conn   net.Conn
	reader *wire.FrameReader

	mu        sync.Mutex
	nextReqID uint32

	Events chan rawFrame
}

type rawFrame struct {
	responseType wire.ResponseType
	errorCode    wire.ErrorCode
	body         []byte
}

// Dial connects to a running monitor server at addr ("host:port").
func Dial(addr string) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{
		conn:      conn,
		reader:    wire.NewFrameReader(conn),
		nextReqID: 1,
		Events:    make(chan rawFrame, 64),
	}
	return c, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// rawResponse is a decoded reply frame (a command's response, parsed the
// same way a request would be, since response and request share a
// header shape — see wire.RemainingHeaderSize).
type rawResponse struct {
	responseType wire.ResponseType
	errorCode    wire.ErrorCode
	body         []byte
}

// Send writes a command and blocks for its matching response, discarding
// (and forwarding to Events) any unsolicited event frames that arrive
// first — the server may emit REGISTER_INFO/STOPPED/RESUMED/JAM at any
// time, not just between commands.
func (c *Client) Send(cmdType wire.CommandType, body []byte) (*rawResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	reqID := c.nextReqID
	c.nextReqID++

	if err := writeCommand(c.conn, reqID, cmdType, body); err != nil {
		return nil, err
	}

	for {
		frame, requestID, err := c.readRaw()
		if err != nil {
			return nil, err
		}
		if requestID == wire.EventRequestID {
			select {
			case c.Events <- frame:
			default:
			}
			continue
		}
		if requestID != reqID {
			continue // stale/unexpected reply, keep waiting
		}
		return &rawResponse{responseType: frame.responseType, errorCode: frame.errorCode, body: frame.body}, nil
	}
}

// readRaw reads one frame off the wire and splits it into its
// response_type/error_code/body parts plus the request_id, reusing
// FrameReader (which decodes the shared request_id + one-byte-type
// header) and treating the remaining first body byte as error_code.
func (c *Client) readRaw() (rawFrame, uint32, error) {
	cmd, err := c.reader.ReadCommand()
	if err != nil {
		return rawFrame{}, 0, err
	}
	var errorCode wire.ErrorCode
	body := cmd.Body
	if len(body) > 0 {
		errorCode = wire.ErrorCode(body[0])
		body = body[1:]
	}
	return rawFrame{responseType: wire.ResponseType(cmd.Type), errorCode: errorCode, body: body}, cmd.RequestID, nil
}

// writeCommand serializes a request frame directly (not via wire.Frame,
// which is response-shaped): STX|api_version|body_length|request_id|
// command_type|body.
func writeCommand(w interface{ Write([]byte) (int, error) }, requestID uint32, cmdType wire.CommandType, body []byte) error {
	bodyLength := uint32(wire.RemainingHeaderSize + len(body))

	out := make([]byte, 0, 10+len(body))
	out = append(out, wire.STX, wire.APIVersion)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], bodyLength)
	out = append(out, lenBuf[:]...)

	var reqBuf [4]byte
	binary.LittleEndian.PutUint32(reqBuf[:], requestID)
	out = append(out, reqBuf[:]...)

	out = append(out, byte(cmdType))
	out = append(out, body...)

	_, err := w.Write(out)
	return err
}
