// Package types defines the wire and in-memory data types shared across the
// gateway: inbound frames, outbound responses, and conversation turns.
package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// FrameType identifies the kind of an inbound frame.
type FrameType string

const (
	// FrameAudio carries a base64-encoded audio chunk.
	FrameAudio FrameType = "audio"
	// FrameVideo carries a base64-encoded single video frame.
	FrameVideo FrameType = "video"
	// FrameControl carries a control signal string.
	FrameControl FrameType = "control"
)

// ControlEndOfSpeech is the only recognized control payload. It forces an
// utterance flush regardless of VAD state.
const ControlEndOfSpeech = "END_OF_SPEECH"

// Envelope is the raw wire form of an inbound frame, before payload decoding.
type Envelope struct {
	Type      FrameType `json:"type"`
	Data      string    `json:"data"`
	SessionID string    `json:"session_id"`
	Timestamp float64   `json:"timestamp,omitempty"`
}

// Frame is a decoded inbound frame. Payload holds the base64-decoded bytes
// for audio and video frames; for control frames it holds the raw signal.
// Frames are immutable once constructed.
type Frame struct {
	Type      FrameType
	Payload   []byte
	SessionID string
	Timestamp float64
}

// Control returns the control signal carried by a control frame.
func (f *Frame) Control() string {
	return string(f.Payload)
}

// envelopeSchema validates the wire shape of inbound frames.
const envelopeSchema = `{
	"type": "object",
	"required": ["type", "data", "session_id"],
	"properties": {
		"type": {"type": "string", "enum": ["audio", "video", "control"]},
		"data": {"type": "string"},
		"session_id": {"type": "string", "minLength": 1},
		"timestamp": {"type": "number"}
	}
}`

var compiledEnvelopeSchema = gojsonschema.NewStringLoader(envelopeSchema)

// MalformedFrameError reports an inbound message that could not be parsed as
// a valid frame. It is recovered locally at the transport boundary and never
// mutates session state.
type MalformedFrameError struct {
	Reason string
	Cause  error
}

func (e *MalformedFrameError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed frame: %s: %v", e.Reason, e.Cause)
	}
	return "malformed frame: " + e.Reason
}

// Unwrap returns the underlying error.
func (e *MalformedFrameError) Unwrap() error {
	return e.Cause
}

// ParseFrame validates and decodes a raw inbound message into a Frame.
// Audio and video payloads are base64-decoded after stripping any data-URI
// prefix; control payloads are kept verbatim.
func ParseFrame(raw []byte) (*Frame, error) {
	result, err := gojsonschema.Validate(compiledEnvelopeSchema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &MalformedFrameError{Reason: "invalid JSON", Cause: err}
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return nil, &MalformedFrameError{Reason: strings.Join(details, "; ")}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &MalformedFrameError{Reason: "invalid JSON", Cause: err}
	}

	frame := &Frame{
		Type:      env.Type,
		SessionID: env.SessionID,
		Timestamp: env.Timestamp,
	}

	switch env.Type {
	case FrameAudio, FrameVideo:
		payload, err := base64.StdEncoding.DecodeString(StripDataURI(env.Data))
		if err != nil {
			return nil, &MalformedFrameError{Reason: "invalid base64 payload", Cause: err}
		}
		frame.Payload = payload
	case FrameControl:
		frame.Payload = []byte(env.Data)
	}

	return frame, nil
}

// StripDataURI removes a data-URI scheme prefix ("<mime>;base64,") from a
// base64 string by taking the substring after the first comma, if present.
func StripDataURI(data string) string {
	if idx := strings.IndexByte(data, ','); idx >= 0 {
		return data[idx+1:]
	}
	return data
}

// Response statuses sent to clients.
const (
	StatusConnected  = "connected"
	StatusReceived   = "received"
	StatusProcessing = "processing"
	StatusReply      = "reply"
	StatusError      = "error"
)

// ServerResponse is the outbound frame sent back to the client.
type ServerResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	NextAction string `json:"next_action,omitempty"`
}

// Encode serializes the response as UTF-8 JSON. HTML escaping is disabled so
// non-ASCII text reaches the client unescaped.
func (r ServerResponse) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
