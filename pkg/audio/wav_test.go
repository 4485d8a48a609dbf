package audio

import (
	"bytes"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestExtractPCMRoundTrip(t *testing.T) {
	pcm := []byte{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
	wav := NewWavBuffer(pcm, 16000)

	payload, err := ExtractPCM(wav)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !payload.Valid {
		t.Fatalf("expected valid mono 16-bit payload")
	}
	if payload.Channels != 1 || payload.BitsPerSample != 16 || payload.SampleRate != 16000 {
		t.Errorf("unexpected fmt fields: %+v", payload)
	}
	if !bytes.Equal(payload.PCM, pcm) {
		t.Errorf("expected %v, got %v", pcm, payload.PCM)
	}

	rewrapped := NewWavBuffer(payload.PCM, payload.SampleRate)
	if !bytes.Equal(rewrapped, wav) {
		t.Errorf("rewrapped WAV not byte-identical to original")
	}
}

func TestExtractPCMRejectsNonRIFF(t *testing.T) {
	if _, err := ExtractPCM([]byte("not a wav file at all")); err == nil {
		t.Errorf("expected error for non-RIFF input")
	}
}

func TestExtractPCMRejectsStereo(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := NewWavBuffer(pcm, 16000)
	// flip the channel count field (byte 22 of the WAV, inside the fmt chunk) to 2
	wav[22] = 2

	payload, err := ExtractPCM(wav)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if payload.Valid {
		t.Errorf("expected stereo payload to be marked invalid")
	}
}
