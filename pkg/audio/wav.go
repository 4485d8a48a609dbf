// Package audio implements the audio device abstraction, WAV framing, and
// the ambient-noise estimator described in spec §4.2-4.3.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// ErrNotRIFFWave is returned when a payload doesn't start with a RIFF/WAVE
// container.
var ErrNotRIFFWave = errors.New("audio: not a RIFF/WAVE container")

// ErrUnsupportedFormat is returned when the fmt chunk isn't PCM, or parsing
// hit an inconsistency before a usable fmt chunk was found.
var ErrUnsupportedFormat = errors.New("audio: unsupported WAV format (want PCM, mono, 16-bit)")

// ErrMissingDataChunk is returned when no data chunk was found before EOF.
var ErrMissingDataChunk = errors.New("audio: missing data chunk")

const (
	formatPCM       = 1
	bitsPerSample16 = 16
)

// NewWavBuffer wraps raw 16-bit mono PCM in a standard RIFF/WAVE container.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// PCMPayload is the decoded form of a network WAV upload (spec §3, "Network
// PCM payload"). Valid is true only when Channels==1 && BitsPerSample==16.
type PCMPayload struct {
	PCM           []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
	Valid         bool
}

// ExtractPCM parses a RIFF/WAVE container, validates the fmt chunk is PCM,
// and returns the raw sample bytes from the data chunk. Non-PCM formats are
// rejected per spec §6 ("Other formats are rejected").
func ExtractPCM(wav []byte) (PCMPayload, error) {
	var out PCMPayload

	if len(wav) < 12 || string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return out, ErrNotRIFFWave
	}

	r := bytes.NewReader(wav[12:])
	var sawFmt bool

	for {
		var id [4]byte
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			break
		}

		chunkStart := len(wav) - r.Len()
		chunkEnd := chunkStart + int(size)
		if chunkEnd > len(wav) {
			break
		}
		chunk := wav[chunkStart:chunkEnd]

		switch string(id[:]) {
		case "fmt ":
			if len(chunk) < 16 {
				return out, ErrUnsupportedFormat
			}
			audioFormat := binary.LittleEndian.Uint16(chunk[0:2])
			channels := binary.LittleEndian.Uint16(chunk[2:4])
			sampleRate := binary.LittleEndian.Uint32(chunk[4:8])
			bits := binary.LittleEndian.Uint16(chunk[14:16])
			if audioFormat != formatPCM {
				return out, ErrUnsupportedFormat
			}
			out.Channels = int(channels)
			out.SampleRate = int(sampleRate)
			out.BitsPerSample = int(bits)
			sawFmt = true
		case "data":
			if !sawFmt {
				return out, ErrUnsupportedFormat
			}
			out.PCM = append([]byte(nil), chunk...)
			out.Valid = out.Channels == 1 && out.BitsPerSample == bitsPerSample16
			return out, nil
		}

		advance := int64(size)
		if size%2 == 1 {
			advance++ // chunks are word-aligned
		}
		if _, err := r.Seek(advance, io.SeekCurrent); err != nil {
			break
		}
	}

	return out, ErrMissingDataChunk
}
