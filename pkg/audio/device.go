package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Policy per spec §4.2: 16 kHz, 16-bit signed LE, mono.
const (
	SampleRate    = 16000
	Channels      = 1
	BytesPerSamp  = 2
	DefaultFrameDuration = 20 * time.Millisecond
)

// FrameBytes returns the byte size of one frame at the given duration,
// rounded to a whole number of samples.
func FrameBytes(frameDuration time.Duration) int {
	samples := int(frameDuration.Seconds() * float64(SampleRate))
	return samples * BytesPerSamp * Channels
}

// ErrFrameTimeout is returned by ReadFrame when no full frame arrived
// within four times DefaultFrameDuration (80 ms). The wait does not follow
// the frame duration chosen at open time, so a read can block longer than
// one frame.
var ErrFrameTimeout = errors.New("audio: read_frame timed out waiting for a full frame")

// CaptureStream is the capture half of the device abstraction (spec §4.2).
// Partial reads are disallowed: ReadFrame returns either a full frame or an
// error.
type CaptureStream interface {
	ReadFrame(buf []byte) (int, error)
	Close() error
}

// PlaybackStream is the playback half. Implementations must serialize
// writes through an internal queue + single writer worker so WriteFrame may
// be called concurrently from any goroutine (spec §4.2, "Resource policy").
type PlaybackStream interface {
	WriteFrame(pcm []byte) error
	Close() error
}

// DeviceEntry is the (logical_name, device_id) pair loaded from
// configuration (spec §3, "Audio device entry").
type DeviceEntry struct {
	LogicalName string
	DeviceID    string
}

// DeviceManager owns the malgo context and opens capture/playback streams
// by logical name. Devices are owned by the caller (the listening state
// machine's control thread, per spec §4.2 "Resource policy") — the manager
// itself holds no concurrent readers/writers to a single handle beyond what
// each stream implementation serializes internally.
type DeviceManager struct {
	ctx      *malgo.AllocatedContext
	captures map[string]string // logical name -> device id string
	playback map[string]string
}

// NewDeviceManager initializes the underlying audio backend and indexes the
// configured capture/playback device collections by logical name. Logical
// names must be unique within each collection (spec §3 invariant); a
// duplicate is a configuration error at startup.
func NewDeviceManager(captureDevices, playbackDevices []DeviceEntry) (*DeviceManager, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}

	m := &DeviceManager{
		ctx:      ctx,
		captures: make(map[string]string, len(captureDevices)),
		playback: make(map[string]string, len(playbackDevices)),
	}

	for _, d := range captureDevices {
		if _, dup := m.captures[d.LogicalName]; dup {
			ctx.Uninit()
			return nil, fmt.Errorf("audio: duplicate capture logical name %q", d.LogicalName)
		}
		m.captures[d.LogicalName] = d.DeviceID
	}
	for _, d := range playbackDevices {
		if _, dup := m.playback[d.LogicalName]; dup {
			ctx.Uninit()
			return nil, fmt.Errorf("audio: duplicate playback logical name %q", d.LogicalName)
		}
		m.playback[d.LogicalName] = d.DeviceID
	}

	return m, nil
}

func (m *DeviceManager) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

func (m *DeviceManager) resolveID(kind malgo.DeviceType, wantID string) (malgo.DeviceID, bool) {
	var zero malgo.DeviceID
	if wantID == "" {
		return zero, false
	}
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return zero, false
	}
	for _, info := range infos {
		if strings.EqualFold(info.Name(), wantID) {
			return info.ID, true
		}
	}
	return zero, false
}

// OpenCapture opens a capture stream for the given logical device name. A
// frame is frameDuration of audio (fixed at open time, per spec §4.2).
func (m *DeviceManager) OpenCapture(logicalName string, frameDuration time.Duration) (CaptureStream, error) {
	frameBytes := FrameBytes(frameDuration)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	if id, ok := m.resolveID(malgo.Capture, m.captures[logicalName]); ok {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	cs := &captureStream{
		frameBytes: frameBytes,
		frames:     make(chan []byte, 8),
		closed:     make(chan struct{}),
	}

	var pending bytes.Buffer
	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if pInput == nil {
				return
			}
			pending.Write(pInput)
			for pending.Len() >= frameBytes {
				frame := make([]byte, frameBytes)
				pending.Read(frame)
				select {
				case cs.frames <- frame:
				default:
					// consumer fell behind; drop the oldest pending frame
					select {
					case <-cs.frames:
					default:
					}
					cs.frames <- frame
				}
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open capture %q: %w", logicalName, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start capture %q: %w", logicalName, err)
	}

	cs.device = device
	return cs, nil
}

type captureStream struct {
	device     *malgo.Device
	frames     chan []byte
	frameBytes int
	closed     chan struct{}
	closeOnce  sync.Once
}

func (cs *captureStream) ReadFrame(buf []byte) (int, error) {
	if len(buf) < cs.frameBytes {
		return 0, fmt.Errorf("audio: read buffer too small: need %d, got %d", cs.frameBytes, len(buf))
	}
	select {
	case frame := <-cs.frames:
		n := copy(buf, frame)
		return n, nil
	case <-cs.closed:
		return 0, errors.New("audio: capture stream closed")
	case <-time.After(DefaultFrameDuration * 4):
		return 0, ErrFrameTimeout
	}
}

func (cs *captureStream) Close() error {
	cs.closeOnce.Do(func() {
		close(cs.closed)
		cs.device.Uninit()
	})
	return nil
}

// OpenPlayback opens a playback stream for the given logical device name.
func (m *DeviceManager) OpenPlayback(logicalName string, frameDuration time.Duration) (PlaybackStream, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = Channels
	deviceConfig.SampleRate = SampleRate
	deviceConfig.Alsa.NoMMap = 1

	if id, ok := m.resolveID(malgo.Playback, m.playback[logicalName]); ok {
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	ps := &playbackStream{closed: make(chan struct{})}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			ps.mu.Lock()
			n := copy(pOutput, ps.pending)
			ps.pending = ps.pending[n:]
			ps.mu.Unlock()
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		},
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open playback %q: %w", logicalName, err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start playback %q: %w", logicalName, err)
	}

	ps.device = device
	return ps, nil
}

// playbackStream serializes writes through an internal queue (a single byte
// buffer drained by the malgo callback) so WriteFrame may be invoked from
// any goroutine, per spec §4.2.
type playbackStream struct {
	device  *malgo.Device
	mu      sync.Mutex
	pending []byte
	closed  chan struct{}
	closeOnce sync.Once
}

func (ps *playbackStream) WriteFrame(pcm []byte) error {
	select {
	case <-ps.closed:
		return errors.New("audio: playback stream closed")
	default:
	}
	ps.mu.Lock()
	ps.pending = append(ps.pending, pcm...)
	ps.mu.Unlock()
	return nil
}

func (ps *playbackStream) Close() error {
	ps.closeOnce.Do(func() {
		close(ps.closed)
		ps.device.Uninit()
	})
	return nil
}
