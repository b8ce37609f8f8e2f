package alerting

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// wavPCM is the audio format tag of uncompressed PCM.
	wavPCM = 1
	// wavBitDepth is the only sample size the speaker accepts.
	wavBitDepth = 16
	// wavFmtSize is the size of the mandatory part of the fmt chunk.
	wavFmtSize = 16
)

var (
	// errNotWAV is returned for data without a RIFF/WAVE header.
	errNotWAV = errors.New("not a RIFF/WAVE file")
	// errUnsupportedWAV is returned for anything but 16-bit PCM.
	errUnsupportedWAV = errors.New("only 16-bit PCM WAV is supported")
	// errNoWAVData is returned when the data chunk is missing or empty.
	errNoWAVData = errors.New("WAV file has no audio data")
)

// Format describes PCM samples.
type Format struct {
	// SampleRate is in Hz.
	SampleRate int
	// Channels is 1 for mono, 2 for stereo.
	Channels int
	// BitDepth is bits per sample.
	BitDepth int
}

// wavFmtChunk is the mandatory part of the fmt chunk.
type wavFmtChunk struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// ParseWAV returns the format and the PCM payload of a WAV file.
func ParseWAV(data []byte) (Format, []byte, error) {
	reader := bytes.NewReader(data)

	var header [12]byte
	if _, err := io.ReadFull(reader, header[:]); err != nil {
		return Format{}, nil, errNotWAV
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return Format{}, nil, errNotWAV
	}

	var (
		format  Format
		seenFmt bool
	)

	for {
		var (
			chunkID   [4]byte
			chunkSize uint32
		)

		if _, err := io.ReadFull(reader, chunkID[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return Format{}, nil, errNoWAVData
			}

			return Format{}, nil, fmt.Errorf("read chunk id: %w", err)
		}

		if err := binary.Read(reader, binary.LittleEndian, &chunkSize); err != nil {
			return Format{}, nil, fmt.Errorf("read chunk size: %w", err)
		}

		switch string(chunkID[:]) {
		case "fmt ":
			var chunk wavFmtChunk
			if err := binary.Read(reader, binary.LittleEndian, &chunk); err != nil {
				return Format{}, nil, fmt.Errorf("read fmt chunk: %w", err)
			}

			if chunk.AudioFormat != wavPCM || chunk.BitsPerSample != wavBitDepth {
				return Format{}, nil, errUnsupportedWAV
			}

			format = Format{
				SampleRate: int(chunk.SampleRate),
				Channels:   int(chunk.Channels),
				BitDepth:   int(chunk.BitsPerSample),
			}
			seenFmt = true

			if err := skip(reader, int64(chunkSize)-wavFmtSize); err != nil {
				return Format{}, nil, err
			}
		case "data":
			if !seenFmt {
				return Format{}, nil, errUnsupportedWAV
			}

			size := min(int(chunkSize), reader.Len())
			if size == 0 {
				return Format{}, nil, errNoWAVData
			}

			pcm := make([]byte, size)
			if _, err := io.ReadFull(reader, pcm); err != nil {
				return Format{}, nil, fmt.Errorf("read data chunk: %w", err)
			}

			return format, pcm, nil
		default:
			if err := skip(reader, int64(chunkSize)); err != nil {
				return Format{}, nil, err
			}
		}
	}
}

// EncodeWAV wraps 16-bit PCM samples into a WAV file.
func EncodeWAV(format Format, pcm []byte) []byte {
	var buf bytes.Buffer

	blockAlign := format.Channels * wavBitDepth / 8

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm))) //nolint:gosec // Alarm tones are small.
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(wavFmtSize))
	_ = binary.Write(&buf, binary.LittleEndian, wavFmtChunk{ //nolint:gosec // Header values of alarm tones fit.
		AudioFormat:   wavPCM,
		Channels:      uint16(format.Channels),
		SampleRate:    uint32(format.SampleRate),
		ByteRate:      uint32(format.SampleRate * blockAlign),
		BlockAlign:    uint16(blockAlign),
		BitsPerSample: wavBitDepth,
	})
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm))) //nolint:gosec // Alarm tones are small.
	buf.Write(pcm)

	return buf.Bytes()
}

// skip advances the reader, padding odd chunk sizes as RIFF requires.
func skip(reader *bytes.Reader, n int64) error {
	if n <= 0 {
		return nil
	}

	if n%2 == 1 {
		n++
	}

	if _, err := reader.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("skip chunk: %w", err)
	}

	return nil
}
