package netaudio

import "errors"

var (
	// ErrChecksumMismatch is returned by ReadFrame when a payload's
	// Fletcher-16 doesn't match the header's checksum field.
	ErrChecksumMismatch = errors.New("netaudio: checksum mismatch")

	// ErrVersionMismatch is returned when a frame or handshake declares a
	// protocol version this gateway doesn't speak.
	ErrVersionMismatch = errors.New("netaudio: version mismatch")

	// ErrProtocolViolation covers malformed framing that isn't simply a
	// bad checksum: bad magic, truncated handshake, out-of-order frame
	// types. Spec §7 policy: close the connection, record the reason, do
	// not crash.
	ErrProtocolViolation = errors.New("netaudio: protocol violation")

	// ErrRetriesExceeded is returned by SendMessageWithRetry once a frame's
	// first send and all MaxRetries resends have been Nacked.
	ErrRetriesExceeded = errors.New("netaudio: retry limit exceeded")

	// ErrGatewayBusy names the case of a client's upload arriving while the
	// rendezvous slot already holds an in-flight request. The Gateway does
	// not return it: it answers such an upload with an empty busy reply.
	ErrGatewayBusy = errors.New("netaudio: gateway busy")
)
