package netaudio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/logging"
)

// Gateway is the Network Audio Gateway (spec §4.7): a TCP listener that
// accepts WAV-over-wire-protocol uploads, hands the PCM to the
// rendezvous slot, and frames the resulting reply back to the client.
type Gateway struct {
	addr         string
	slot         *RendezvousSlot
	awaitTimeout time.Duration
	maxByteCap   int
	logger       logging.Logger

	ln net.Listener
}

// Options configures a Gateway.
type Options struct {
	Addr string // e.g. ":5000"

	// AwaitTimeout bounds how long the gateway waits for the state
	// machine to complete a submitted request (spec: "default tens of
	// seconds").
	AwaitTimeout time.Duration

	// MaxByteCap bounds how much PCM the gateway will accept from one
	// client; oversized payloads are truncated on frame boundaries (spec
	// §4.7).
	MaxByteCap int

	Logger logging.Logger
}

// NewGateway builds a Gateway bound to a rendezvous slot shared with the
// listening state machine.
func NewGateway(slot *RendezvousSlot, opts Options) *Gateway {
	timeout := opts.AwaitTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cap := opts.MaxByteCap
	if cap <= 0 {
		cap = MaxMessageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = &logging.NoOpLogger{}
	}
	return &Gateway{
		addr:         opts.Addr,
		slot:         slot,
		awaitTimeout: timeout,
		maxByteCap:   cap,
		logger:       logger,
	}
}

// ListenAndServe opens the TCP listener and serves connections until ctx
// is cancelled.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("netaudio: listen %s: %w", g.addr, err)
	}
	g.ln = ln

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("netaudio: accept: %w", err)
		}
		go g.handleConn(ctx, conn)
	}
}

// Close stops the listener.
func (g *Gateway) Close() error {
	if g.ln == nil {
		return nil
	}
	return g.ln.Close()
}

func (g *Gateway) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	label := conn.RemoteAddr().String()

	wav, err := ReceiveMessage(conn, func(ack Frame) error { return WriteFrame(conn, ack) })
	if err != nil {
		if errors.Is(err, ErrProtocolViolation) || errors.Is(err, ErrVersionMismatch) {
			g.logger.Warn("netaudio: protocol violation, closing connection", "client", label, "err", err)
			return
		}
		g.logger.Warn("netaudio: receive failed", "client", label, "err", err)
		return
	}

	payload, err := audio.ExtractPCM(wav)
	if err != nil || !payload.Valid {
		g.logger.Warn("netaudio: rejecting malformed WAV upload", "client", label, "err", err)
		return
	}

	pcm := payload.PCM
	if len(pcm) > g.maxByteCap {
		truncated := g.maxByteCap - (g.maxByteCap % 2) // stay on 16-bit frame boundaries
		pcm = pcm[:truncated]
		g.logger.Warn("netaudio: truncating oversized upload", "client", label, "original_bytes", len(payload.PCM), "truncated_bytes", truncated)
	}

	if !g.slot.TrySubmit(Request{PCM: pcm, ClientLabel: label}) {
		g.sendBusyReply(conn, label)
		return
	}

	awaitCtx, cancel := context.WithTimeout(ctx, g.awaitTimeout)
	defer cancel()

	result, ok := g.slot.Await(awaitCtx)
	if !ok {
		g.logger.Warn("netaudio: state machine did not complete request in time", "client", label)
		return
	}

	if err := SendMessageWithRetry(conn, result.WAV); err != nil {
		g.logger.Warn("netaudio: failed to send reply", "client", label, "err", err)
	}
}

// sendBusyReply handles gateway-level overflow: a second upload arriving
// while the rendezvous slot already holds an in-flight request (spec
// §3). This is distinct from the state machine's own busy reply, which
// it synthesizes into the slot itself when it observes ready=true while
// in ProcessCommand/VisionReady (spec §4.7) — that WAV travels back to
// the client through the normal Await/SendMessageWithRetry path above.
func (g *Gateway) sendBusyReply(conn net.Conn, label string) {
	g.logger.Info("netaudio: rejecting upload, gateway busy", "client", label)
	busy := audio.NewWavBuffer(nil, audio.SampleRate)
	if err := SendMessageWithRetry(conn, busy); err != nil {
		g.logger.Warn("netaudio: failed to send busy reply", "client", label, "err", err)
	}
}
