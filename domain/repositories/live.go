package repositories

import (
	"context"

	"github.com/satriahrh/careerpilot/server/domain/entities"
)

// LiveSessionConfig describes the remote session to open
type LiveSessionConfig struct {
	Model               string
	SystemInstruction   string
	ResponseModalities  []string
	InputTranscription  bool
	OutputTranscription bool
}

// LiveCallbacks receives the lifecycle events of a remote session.
// Callbacks are invoked from a single goroutine in arrival order.
type LiveCallbacks struct {
	OnOpen    func()
	OnMessage func(msg entities.LiveMessage)
	OnError   func(err error)
	OnClose   func()
}

// LiveConnector opens bidirectional streaming sessions with the AI service
type LiveConnector interface {
	Connect(ctx context.Context, config LiveSessionConfig, callbacks LiveCallbacks) (RemoteSession, error)
}

// RemoteSession is an open streaming session
type RemoteSession interface {
	// SendRealtimeInput submits one captured audio frame
	SendRealtimeInput(frame entities.AudioFrame) error
	// Close requests session close. Calling it more than once is a no-op.
	Close() error
}
