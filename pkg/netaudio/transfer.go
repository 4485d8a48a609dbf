package netaudio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// SendMessage frames payload as Handshake → { Data }* → DataEnd and
// writes it to w, splitting payload into MaxPayloadSize chunks (spec
// §4.7 "Packet framing"). It does not itself wait for Acks; callers that
// need retry-on-Nack should use SendMessageWithRetry over a
// bidirectional conn.
func SendMessage(w io.Writer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("netaudio: message of %d bytes exceeds max message size %d", len(payload), MaxMessageSize)
	}

	if err := WriteFrame(w, NewHandshakeFrame()); err != nil {
		return err
	}

	for offset := 0; offset < len(payload); offset += MaxPayloadSize {
		end := offset + MaxPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := WriteFrame(w, NewFrame(FrameData, payload[offset:end])); err != nil {
			return err
		}
	}

	return WriteFrame(w, NewFrame(FrameDataEnd, nil))
}

// ReadWriter is the minimal conn shape the retrying transfer helpers
// need: a framed byte stream in both directions.
type ReadWriter interface {
	io.Reader
	io.Writer
}

// SendMessageWithRetry frames payload exactly as SendMessage does, but
// after each Data frame waits for the peer's Ack/Nack and resends on
// Nack up to MaxRetries times (spec §4.7: "on mismatch it sends Nack and
// the sender retries up to a configured cap").
func SendMessageWithRetry(rw ReadWriter, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("netaudio: message of %d bytes exceeds max message size %d", len(payload), MaxMessageSize)
	}

	if err := sendFrameWithRetry(rw, NewHandshakeFrame()); err != nil {
		return err
	}

	for offset := 0; offset < len(payload); offset += MaxPayloadSize {
		end := offset + MaxPayloadSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := sendFrameWithRetry(rw, NewFrame(FrameData, payload[offset:end])); err != nil {
			return err
		}
	}

	return sendFrameWithRetry(rw, NewFrame(FrameDataEnd, nil))
}

func sendFrameWithRetry(rw ReadWriter, f Frame) error {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if err := WriteFrame(rw, f); err != nil {
			return err
		}

		reply, err := ReadFrame(rw)
		if err != nil {
			return fmt.Errorf("netaudio: waiting for ack: %w", err)
		}
		switch reply.Type {
		case FrameAck:
			return nil
		case FrameNack, FrameRetry:
			continue
		default:
			return fmt.Errorf("%w: unexpected reply frame %s", ErrProtocolViolation, reply.Type)
		}
	}
	return ErrRetriesExceeded
}

// ReceiveMessage reads a full Handshake → { Data }* → DataEnd transfer
// from r, validating the handshake and each Data frame's checksum, and
// returns the reassembled payload. ack, if non-nil, is called to send an
// Ack back to the sender for the accepted Handshake, each
// successfully-checksummed Data frame and the closing DataEnd, and a Nack
// for each Data frame whose checksum does not match.
func ReceiveMessage(r io.Reader, ack func(Frame) error) ([]byte, error) {
	hs, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	if err := ValidateHandshake(hs); err != nil {
		return nil, err
	}
	if ack != nil {
		if ackErr := ack(NewFrame(FrameAck, nil)); ackErr != nil {
			return nil, ackErr
		}
	}

	var buf bytes.Buffer
	for {
		frame, err := ReadFrame(r)
		if errors.Is(err, ErrChecksumMismatch) {
			if ack != nil {
				if ackErr := ack(NewFrame(FrameNack, nil)); ackErr != nil {
					return nil, ackErr
				}
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case FrameDataEnd:
			if ack != nil {
				if ackErr := ack(NewFrame(FrameAck, nil)); ackErr != nil {
					return nil, ackErr
				}
			}
			return buf.Bytes(), nil
		case FrameData:
			if buf.Len()+len(frame.Payload) > MaxMessageSize {
				return nil, fmt.Errorf("%w: message exceeds max size %d", ErrProtocolViolation, MaxMessageSize)
			}
			buf.Write(frame.Payload)
			if ack != nil {
				if ackErr := ack(NewFrame(FrameAck, nil)); ackErr != nil {
					return nil, ackErr
				}
			}
		default:
			return nil, fmt.Errorf("%w: unexpected frame type %s mid-transfer", ErrProtocolViolation, frame.Type)
		}
	}
}
