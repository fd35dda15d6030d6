package transcription

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAudio is returned when the recording to transcribe has no bytes.
	ErrEmptyAudio = errors.New("audio file is empty, cannot send to provider")
	// ErrLowConfidence is returned when the provider answered but the
	// transcript looks like noise (empty, one character, or only symbols).
	ErrLowConfidence = errors.New("provider returned an irrelevant, empty, or single character response")
)

// ProviderError reports a response the provider marked as failed, or one
// that could not be understood.
type ProviderError struct {
	Status  int
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.Status, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// TransportError reports a provider call that never produced a response:
// DNS, connect, TLS, timeout or a broken body.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transcription request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
