package arq

import "errors"

// Errors returned by Connection operations. None are fatal to the
// Connection; the only terminal condition is a dead link, reported through
// Connection.Dead, not through an error return.
var (
	// ErrMessageTooLarge is returned by Send when a message-mode submission
	// would require WindowRecv or more fragments to transmit.
	ErrMessageTooLarge = errors.New("arq: message requires too many fragments")

	// ErrWrongConv is returned by Input when a segment's conv field does not
	// match the Connection's conv.
	ErrWrongConv = errors.New("arq: conversation id mismatch")

	// ErrTruncated is returned by Input when the supplied bytes end in the
	// middle of a segment header or payload.
	ErrTruncated = errors.New("arq: truncated segment")

	// ErrBadCmd is returned by Input when a segment carries an unknown cmd.
	ErrBadCmd = errors.New("arq: unknown segment command")

	// ErrInvalidConfig is returned by SetMTU when given an MTU below 50
	// bytes.
	ErrInvalidConfig = errors.New("arq: invalid configuration value")

	// ErrNotReady is returned by Recv and PeekSize when no complete message
	// is currently available.
	ErrNotReady = errors.New("arq: not ready")
)
