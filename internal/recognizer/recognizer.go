// Package recognizer connects an external speech recognizer to the session
// controller.
//
// The recognizer runs outside the process (typically a browser using the Web
// Speech API) and talks to cockpit over a WebSocket. [Hub] terminates that
// socket: it forwards result, error and end frames to a [Sink] and sends start
// and stop control frames back. [Supervisor] restarts the recognizer after a
// short delay when it stops on its own while the session is still listening.
//
// Wire format (JSON text frames):
//
//	recognizer → cockpit  {"type":"result","text":"...","isFinal":true,"confidence":0.92}
//	                      {"type":"error","code":"no-speech"}
//	                      {"type":"end"}
//	cockpit → recognizer  {"type":"start"} | {"type":"stop"}
package recognizer

import (
	"context"
	"errors"
)

// Frame types.
const (
	FrameResult = "result"
	FrameError  = "error"
	FrameEnd    = "end"
	FrameStart  = "start"
	FrameStop   = "stop"
)

// CodeNoSpeech is the error code reported when the recognizer heard nothing.
const CodeNoSpeech = "no-speech"

// ErrNotConnected is returned when no recognizer client is attached.
var ErrNotConnected = errors.New("recognizer: no client connected")

// Frame is one message on the recognizer socket.
type Frame struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"isFinal,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Code       string  `json:"code,omitempty"`
}

// Recognizer is a remote recognizer that can be started and stopped.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Sink consumes recognizer events. [*session.Controller] satisfies it.
type Sink interface {
	HandleResult(text string, isFinal bool, confidence float64)
	HandleError(code string)
	HandleEnd()
	ShouldRestart() bool
}

// Monitor is told about recognizer faults and signs of life.
// [*Supervisor] satisfies it.
type Monitor interface {
	Fault(reason string)
	Alive()
}
