package chat

import "errors"

var (
	// ErrInvalidIdentifier is returned by Join when the participant name is empty.
	ErrInvalidIdentifier = errors.New("invalid participant identifier")
	// ErrIdentifierTaken is returned by Join under DuplicateReject when the
	// name is already registered.
	ErrIdentifierTaken = errors.New("participant identifier already in use")
	// ErrUnknownParticipant is returned by SendTo for names not in the registry.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrHubClosed is returned by Join once Close has been called.
	ErrHubClosed = errors.New("hub closed")

	// ErrDisconnected is returned by Handle.Receive when the remote end went away.
	ErrDisconnected = errors.New("participant disconnected")
	// ErrHandleClosed is returned by Handle.Send after Close.
	ErrHandleClosed = errors.New("handle closed")
	// ErrSendTimeout is returned by Handle.Send when the message could not be
	// handed to the transport before the context expired.
	ErrSendTimeout = errors.New("send timed out")
)
