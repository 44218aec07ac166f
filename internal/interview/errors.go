package interview

import "errors"

var (
	// ErrSessionInProgress is returned by Start while a session is connecting or active
	ErrSessionInProgress = errors.New("interview session already in progress")
	// ErrMicrophoneUnavailable wraps microphone permission and device failures
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	// ErrOutputUnavailable wraps audio output failures
	ErrOutputUnavailable = errors.New("audio output unavailable")
	// ErrConnectTimeout is recorded when the live session does not open in time
	ErrConnectTimeout = errors.New("timed out connecting to the live session")
	// ErrSessionStopped is returned by Start when the session was stopped before it finished starting
	ErrSessionStopped = errors.New("interview session stopped while starting")
	// ErrTooManySendFailures is recorded when consecutive frame sends keep failing
	ErrTooManySendFailures = errors.New("too many failed audio sends")
	// ErrCorruptChunk is returned for inbound audio that cannot be decoded
	ErrCorruptChunk = errors.New("corrupt audio chunk")
	// ErrSchedulerClosed is returned when audio arrives after playback was closed
	ErrSchedulerClosed = errors.New("playback scheduler closed")
)
