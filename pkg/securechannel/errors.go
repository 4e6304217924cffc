package securechannel

import (
	"errors"
	"fmt"

	"github.com/backkem/uacp/pkg/ua"
)

// Secure channel errors.
var (
	// ErrPolicyUnsupported is returned when a chunk names a security policy
	// the processor cannot apply.
	ErrPolicyUnsupported = errors.New("securechannel: security policy not supported")

	// ErrNotSecureChannel is returned for records that are not OPN, CLO or MSG.
	ErrNotSecureChannel = errors.New("securechannel: not a secure channel chunk")

	// ErrChunkTooShort is returned when a chunk ends inside its security headers.
	ErrChunkTooShort = errors.New("securechannel: chunk too short for security headers")

	// ErrTokenUnknown is returned when a chunk names a token other than the
	// one the processor was issued.
	ErrTokenUnknown = errors.New("securechannel: security token unknown")

	// ErrAborted is returned when a message was aborted by its sender.
	// The concrete error is an *AbortError.
	ErrAborted = errors.New("securechannel: message aborted by sender")

	// Reassembly errors
	ErrNoChunks         = errors.New("securechannel: no chunks")
	ErrNoFinalChunk     = errors.New("securechannel: message has no final chunk")
	ErrChunkAfterFinal  = errors.New("securechannel: chunk after final chunk")
	ErrChannelMismatch  = errors.New("securechannel: chunks belong to different channels")
	ErrRequestMismatch  = errors.New("securechannel: chunks belong to different requests")
	ErrTypeMismatch     = errors.New("securechannel: chunks have different message types")
	ErrSequenceOrder    = errors.New("securechannel: sequence number not increasing")
	ErrInvalidChunkSize = errors.New("securechannel: chunk body size must be positive")
)

// AbortError carries the error code and reason from an Abort chunk.
type AbortError struct {
	RequestID uint32
	Status    ua.StatusCode
	Reason    string
}

func (e *AbortError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("securechannel: request %d aborted: %s", e.RequestID, e.Status)
	}
	return fmt.Sprintf("securechannel: request %d aborted: %s (%s)", e.RequestID, e.Status, e.Reason)
}

// Unwrap lets errors.Is match both ErrAborted and the status code.
func (e *AbortError) Unwrap() []error {
	return []error{ErrAborted, e.Status}
}
