package wire

import (
	"encoding/binary"
	"io"
)

// Frame serializes a full response or event frame:
// STX | api_version | body_length | request_id | response_type | error_code | body
func Frame(responseType ResponseType, errorCode ErrorCode, requestID uint32, body []byte) []byte {
	// body_length counts everything after it except STX/api_version/body_length
	// itself: request_id(4) + response_type(1) + error_code(1) + body.
	bodyLength := uint32(RemainingHeaderSize + 1 + len(body))

	out := make([]byte, 0, 6+int(bodyLength))
	out = append(out, STX, APIVersion)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], bodyLength)
	out = append(out, lenBuf[:]...)

	var reqBuf [4]byte
	binary.LittleEndian.PutUint32(reqBuf[:], requestID)
	out = append(out, reqBuf[:]...)

	out = append(out, byte(responseType), byte(errorCode))
	out = append(out, body...)

	return out
}

// Respond writes a successful or failed response to a request, echoing
// its request_id.
func Respond(w io.Writer, requestID uint32, responseType ResponseType, errorCode ErrorCode, body []byte) error {
	_, err := w.Write(Frame(responseType, errorCode, requestID, body))
	return err
}

// RespondLengthError answers a request whose body was the wrong length.
// Per original_source's monitor_binary_error, a length failure always
// reports response_type 0 — NOT the triggering command's natural
// response type — regardless of which command malformed the frame.
func RespondLengthError(w io.Writer, requestID uint32) error {
	return Respond(w, requestID, RespInvalid, ErrCmdInvalidLength, nil)
}

// Event writes an unsolicited event frame, using the sentinel
// EventRequestID so a client can tell it apart from a response to its
// own request.
func Event(w io.Writer, responseType ResponseType, body []byte) error {
	return Respond(w, EventRequestID, responseType, ErrOK, body)
}
