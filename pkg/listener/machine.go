// Package listener implements the Listening State Machine (spec §4.1):
// the top-level orchestrator that drives audio capture, wake-word
// detection, command recording, command dispatch, and the
// network-audio/vision side channels through a single control-thread
// loop.
package listener

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dawn-project/dawn/pkg/audio"
	"github.com/dawn-project/dawn/pkg/logging"
	"github.com/dawn-project/dawn/pkg/netaudio"
)

// Capture is the capture half of the audio device abstraction the
// machine reads frames from (spec §4.2); audio.CaptureStream satisfies
// it directly.
type Capture interface {
	ReadFrame(buf []byte) (int, error)
}

// Recognizer is the façade the machine feeds PCM into and reads
// transcripts from (spec §4.4); recognizer.Recognizer satisfies it
// directly.
type Recognizer interface {
	Feed(ctx context.Context, chunk []byte) error
	Partial() string
	Final(ctx context.Context) (string, bool, error)
	Reset()
}

// TTS is the playback control surface the machine drives (spec §4.5);
// ttsctl.Controller satisfies it directly.
type TTS interface {
	Speak(text string)
	Pause()
	Resume()
	Discard()
	IsPaused() bool
	SpeakToWAV(ctx context.Context, text string) ([]byte, error)
}

// StatusPublisher posts best-effort HUD state updates (spec §4.1 step 3,
// §6); mqttbus.Bus satisfies it directly.
type StatusPublisher interface {
	PublishStatus(state string) error
}

// VisionSource reports whether an image is ready for the VisionReady
// state (spec §4.1 step 1). Callers with no vision subsystem wired pass
// NoVision, which never reports an image.
type VisionSource interface {
	TryTakeImage() ([]byte, bool)
}

// noVision is a VisionSource that never has an image ready.
type noVision struct{}

func (noVision) TryTakeImage() ([]byte, bool) { return nil, false }

// NoVision is the default VisionSource when the vision subsystem isn't wired.
var NoVision VisionSource = noVision{}

// Options configures a Machine.
type Options struct {
	Capture    Capture
	// Reopen recreates the capture device after a read error (spec §4.1/
	// §4.2: "reopened once; a second failure propagates"). Nil disables
	// reopen, propagating the first read error immediately.
	Reopen     func() (Capture, error)
	Recognizer Recognizer
	TTS        TTS
	Engine     *CommandEngine
	Vision     VisionSource
	Status     StatusPublisher
	NetSlot    *netaudio.RendezvousSlot
	Sink       *SpeakSink // used to capture built-in-handler replies for NetworkProcessing

	AmbientRMS      float64
	Ambient         *audio.AmbientEstimator
	Silence         *audio.SilenceCounter
	WakeWords       *WakeTable
	GoodbyeWords    []string
	CancelWords     []string
	FrameBuf        []byte
	NetAwaitTimeout time.Duration

	Logger  logging.Logger
	Now     func() time.Time
	Latency *LatencyTracker // defaults to a tracker keyed off Now
}

// Machine is the Listening State Machine. It is not safe for concurrent
// use: the control thread owns it exclusively (spec §5).
type Machine struct {
	capture    Capture
	reopen     func() (Capture, error)
	recognizer Recognizer
	tts        TTS
	engine     *CommandEngine
	vision     VisionSource
	status     StatusPublisher
	netSlot    *netaudio.RendezvousSlot
	sink       *SpeakSink

	ambientRMS   float64
	ambient      *audio.AmbientEstimator
	silence      *audio.SilenceCounter
	wakeWords    *WakeTable
	goodbyeWords []string
	cancelWords  []string
	frameBuf     []byte
	netTimeout   time.Duration

	logger  logging.Logger
	now     func() time.Time
	latency *LatencyTracker

	state         State
	nextAfterWake State // queued next state, initially WakeWordListen
	savedState    State // state preempted by NetworkProcessing/VisionReady
	lastStatus    string
	lastPartial   string
	commandText   string // carried from WakeWordListen into ProcessCommand

	quit atomic.Bool
}

// New builds a Machine in the Silence state with WakeWordListen queued
// next.
func New(opts Options) *Machine {
	if opts.Logger == nil {
		opts.Logger = &logging.NoOpLogger{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Vision == nil {
		opts.Vision = NoVision
	}
	if opts.Latency == nil {
		opts.Latency = NewLatencyTracker(opts.Now)
	}
	return &Machine{
		capture:       opts.Capture,
		reopen:        opts.Reopen,
		recognizer:    opts.Recognizer,
		tts:           opts.TTS,
		engine:        opts.Engine,
		vision:        opts.Vision,
		status:        opts.Status,
		netSlot:       opts.NetSlot,
		sink:          opts.Sink,
		ambientRMS:    opts.AmbientRMS,
		ambient:       opts.Ambient,
		silence:       opts.Silence,
		wakeWords:     opts.WakeWords,
		goodbyeWords:  opts.GoodbyeWords,
		cancelWords:   opts.CancelWords,
		frameBuf:      opts.FrameBuf,
		netTimeout:    opts.NetAwaitTimeout,
		logger:        opts.Logger,
		now:           opts.Now,
		latency:       opts.Latency,
		state:         Silence,
		nextAfterWake: WakeWordListen,
	}
}

// Quit reports whether the machine has been signaled to stop (spec §5,
// "Quit flag ... atomic").
func (m *Machine) Quit() bool { return m.quit.Load() }

// RequestQuit sets the atomic quit flag; the loop exits at its next
// iteration boundary.
func (m *Machine) RequestQuit() { m.quit.Store(true) }

// State returns the machine's current state, for observability/tests.
func (m *Machine) State() State { return m.state }

// GetLatencyBreakdown returns the most recent utterance cycle's measured
// timings (spec §12, latency instrumentation).
func (m *Machine) GetLatencyBreakdown() LatencyBreakdown { return m.latency.GetLatencyBreakdown() }

// Run drives the control loop until ctx is cancelled or Quit() is
// signaled, returning at the next iteration boundary. Run itself speaks
// nothing on exit; the farewell is spoken by cmd/dawnd.
func (m *Machine) Run(ctx context.Context) {
	for ctx.Err() == nil && !m.Quit() {
		if err := m.Step(ctx); err != nil {
			m.logger.Warn("listener: iteration error", "state", m.state.String(), "error", err)
		}
	}
}

// Step runs exactly one control-loop iteration (spec §4.1): vision
// check, network rendezvous check, status publish, then the current
// state's body.
func (m *Machine) Step(ctx context.Context) error {
	if img, ok := m.vision.TryTakeImage(); ok {
		m.savedState = m.state
		m.state = VisionReady
		return m.visionReadyBody(ctx, img)
	}

	if m.netSlot != nil {
		if req, ok := m.netSlot.TryTakeRequest(); ok {
			if m.state == ProcessCommand || m.state == VisionReady {
				m.netSlot.Complete(m.busyReply(ctx))
				return nil
			} else {
				m.savedState = m.state
				m.state = NetworkProcessing
				m.publishStatus()
				return m.networkProcessingBody(ctx, req)
			}
		}
	}

	m.publishStatus()

	switch m.state {
	case Silence:
		return m.silenceBody(ctx)
	case WakeWordListen:
		return m.wakeWordListenBody(ctx)
	case CommandRecording:
		return m.commandRecordingBody(ctx)
	case ProcessCommand:
		return m.processCommandBody(ctx)
	default:
		return fmt.Errorf("listener: unexpected state %s in main loop", m.state)
	}
}

func (m *Machine) publishStatus() {
	if m.status == nil {
		return
	}
	label := m.state.String()
	if label == m.lastStatus {
		return
	}
	m.lastStatus = label
	if err := m.status.PublishStatus(label); err != nil {
		m.logger.Warn("listener: status publish failed", "error", err)
	}
}

// captureFrame reads one frame, reopening the capture device once on
// failure before giving up (spec §4.1/§4.2: "Audio read errors cause the
// capture device to be reopened once; a second failure propagates").
func (m *Machine) captureFrame() ([]byte, error) {
	n, err := m.capture.ReadFrame(m.frameBuf)
	if err == nil {
		return m.frameBuf[:n], nil
	}
	if m.reopen == nil {
		return nil, err
	}

	m.logger.Warn("listener: capture read failed, reopening device", "error", err)
	newCapture, reopenErr := m.reopen()
	if reopenErr != nil {
		return nil, fmt.Errorf("listener: capture read failed (%v) and reopen failed: %w", err, reopenErr)
	}
	m.capture = newCapture

	n, err = m.capture.ReadFrame(m.frameBuf)
	if err != nil {
		return nil, fmt.Errorf("listener: capture read failed again after reopen: %w", err)
	}
	return m.frameBuf[:n], nil
}

// silenceBody implements spec §4.1's Silence state body.
func (m *Machine) silenceBody(ctx context.Context) error {
	m.tts.Resume()

	frame, err := m.captureFrame()
	if err != nil {
		return fmt.Errorf("listener: capture in silence: %w", err)
	}

	if m.ambient.IsTalking(frame, m.ambientRMS) {
		if err := m.recognizer.Feed(ctx, frame); err != nil {
			return fmt.Errorf("listener: feed in silence: %w", err)
		}
		_ = m.recognizer.Partial()
		m.lastPartial = ""
		m.silence.Reset()
		m.state = m.nextAfterWake
	}
	return nil
}

// listenLoop is the shared silence-detection body for WakeWordListen and
// CommandRecording (spec §4.1: "Same silence-detection loop").
// It returns (finalText, ok, err): ok is true only once the silence
// counter has confirmed the end of the utterance.
func (m *Machine) listenLoop(ctx context.Context) (finalText string, ok bool, err error) {
	frame, err := m.captureFrame()
	if err != nil {
		return "", false, fmt.Errorf("listener: capture: %w", err)
	}

	talking := m.ambient.IsTalking(frame, m.ambientRMS)
	if err := m.recognizer.Feed(ctx, frame); err != nil {
		return "", false, fmt.Errorf("listener: feed: %w", err)
	}

	partial := m.recognizer.Partial()
	// An unchanged *non-empty* partial is a no-progress signal (spec
	// §4.1). A batch (non-streaming) recognizer's partial is always
	// empty, in which case silence is judged purely on RMS.
	progressed := partial == "" || partial != m.lastPartial
	m.lastPartial = partial

	confirmed := m.silence.Observe(talking && progressed)
	if !confirmed {
		return "", false, nil
	}

	text, hadText, err := m.recognizer.Final(ctx)
	if err != nil {
		return "", false, fmt.Errorf("listener: final: %w", err)
	}
	if !hadText {
		// Null transcript: log and skip the iteration (spec §4.1 failure
		// semantics), but still reset for the next utterance.
		m.logger.Warn("listener: recognizer returned no transcript, skipping")
		m.silence.Reset()
		return "", false, nil
	}
	m.latency.MarkUtteranceEnd()
	return text, true, nil
}

// wakeWordListenBody implements spec §4.1's WakeWordListen state body.
func (m *Machine) wakeWordListenBody(ctx context.Context) error {
	m.tts.Pause()

	text, confirmed, err := m.listenLoop(ctx)
	if err != nil {
		return err
	}
	if !confirmed {
		return nil
	}
	m.silence.Reset()

	switch {
	case IsGoodbye(m.goodbyeWords, text):
		m.tts.Discard()
		m.tts.Speak("Goodbye sir.")
		m.RequestQuit()
		m.state = Silence

	case m.tts.IsPaused() && IsCancel(m.cancelWords, text):
		m.tts.Discard()
		m.state = Silence

	default:
		if phrase, remainder, atEnd, found := m.wakeWords.Match(text); found {
			if atEnd {
				m.tts.Speak("Yes sir?")
				m.nextAfterWake = CommandRecording
				m.state = Silence
			} else {
				_ = phrase
				m.commandText = remainder
				m.state = ProcessCommand
			}
		} else {
			m.tts.Resume()
			m.state = Silence
		}
	}
	return nil
}

// commandRecordingBody implements spec §4.1's CommandRecording state body.
func (m *Machine) commandRecordingBody(ctx context.Context) error {
	text, confirmed, err := m.listenLoop(ctx)
	if err != nil {
		return err
	}
	if !confirmed {
		return nil
	}
	m.silence.Reset()
	m.commandText = text
	m.state = ProcessCommand
	return nil
}

// processCommandBody implements spec §4.1's ProcessCommand state body.
func (m *Machine) processCommandBody(ctx context.Context) error {
	if IsGoodbye(m.goodbyeWords, m.commandText) {
		m.RequestQuit()
	}

	m.latency.MarkDispatchStart()
	reply, err := m.engine.Dispatch(ctx, m.commandText)
	m.latency.MarkDispatchEnd()
	if err != nil {
		m.logger.Warn("listener: command dispatch failed", "error", err)
		m.latency.MarkSpeakStart()
		m.tts.Speak("Sorry, I'm currently unavailable.")
	} else if reply != "" {
		m.latency.MarkSpeakStart()
		m.tts.Speak(reply)
	}

	m.nextAfterWake = WakeWordListen
	m.state = Silence
	return nil
}

// visionReadyBody implements spec §4.1's VisionReady state body.
func (m *Machine) visionReadyBody(ctx context.Context, image []byte) error {
	reply, err := m.engine.Dispatch(ctx, "What am I looking at?")
	if err != nil {
		m.logger.Warn("listener: vision dispatch failed", "error", err)
		m.tts.Speak("Sorry, I couldn't process that image.")
	} else if reply != "" {
		m.tts.Speak(reply)
	}
	m.state = m.savedState
	return nil
}

// networkProcessingBody implements spec §4.7's state-machine integration:
// reset the recognizer, feed the PCM, retrieve the final transcript, run
// command dispatch, synthesize the reply via speak_to_wav, and complete
// the rendezvous slot.
func (m *Machine) networkProcessingBody(ctx context.Context, req netaudio.Request) error {
	m.netSlot.Complete(m.processNetworkRequest(ctx, req))
	m.state = m.savedState
	return nil
}

func (m *Machine) processNetworkRequest(ctx context.Context, req netaudio.Request) netaudio.Result {
	m.recognizer.Reset()

	const netFrameSize = 640 // 20ms at 16kHz/mono/16-bit
	for offset := 0; offset < len(req.PCM); offset += netFrameSize {
		end := offset + netFrameSize
		if end > len(req.PCM) {
			end = len(req.PCM)
		}
		if err := m.recognizer.Feed(ctx, req.PCM[offset:end]); err != nil {
			m.logger.Warn("listener: network feed failed", "client", req.ClientLabel, "error", err)
			return m.synthesize(ctx, "Sorry, I couldn't process that audio.")
		}
	}

	text, ok, err := m.recognizer.Final(ctx)
	if err != nil || !ok {
		return m.synthesize(ctx, "Sorry, I couldn't understand that.")
	}
	m.latency.MarkUtteranceEnd()

	var reply string
	m.latency.MarkDispatchStart()
	if m.sink != nil {
		restore, get := m.sink.Capture()
		reply, err = m.engine.Dispatch(ctx, text)
		restore()
		if reply == "" {
			reply = get()
		}
	} else {
		reply, err = m.engine.Dispatch(ctx, text)
	}
	m.latency.MarkDispatchEnd()
	if err != nil {
		reply = "Sorry, I'm currently unavailable."
	}
	if reply == "" {
		reply = "Done."
	}

	m.latency.MarkSpeakStart()
	return m.synthesize(ctx, reply)
}

func (m *Machine) busyReply(ctx context.Context) netaudio.Result {
	return m.synthesize(ctx, "I'm currently busy. Please try again in a moment.")
}

func (m *Machine) synthesize(ctx context.Context, text string) netaudio.Result {
	wav, err := m.tts.SpeakToWAV(ctx, text)
	if err != nil {
		m.logger.Warn("listener: speak_to_wav failed", "error", err)
		return netaudio.Result{WAV: audio.NewWavBuffer(nil, audio.SampleRate)}
	}
	return netaudio.Result{WAV: wav}
}
