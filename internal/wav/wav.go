// Package wav reads and writes the RIFF/WAVE container around PCM audio.
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WAV format constants.
const (
	// HeaderSize is the size of the canonical 44-byte header written by WrapRawPCM.
	HeaderSize = 44

	// FormatPCM is the audio format code for uncompressed PCM.
	FormatPCM = 1

	// FormatExtensible wraps PCM in WAVE_FORMAT_EXTENSIBLE headers.
	FormatExtensible = 0xFFFE
)

var (
	// ErrNotWAV is returned when data does not start with a RIFF/WAVE header.
	ErrNotWAV = errors.New("not a RIFF/WAVE stream")
	// ErrUnsupportedFormat is returned for non-PCM or malformed WAV data.
	ErrUnsupportedFormat = errors.New("unsupported WAV format")
)

// Header describes the PCM layout of a WAV stream.
type Header struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// WrapRawPCM adds a canonical WAV header to raw PCM data.
func WrapRawPCM(pcm []byte, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8

	header := make([]byte, HeaderSize, HeaderSize+dataSize)

	copy(header[0:4], "RIFF")
	PutLE32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")

	copy(header[12:16], "fmt ")
	PutLE32(header[16:20], 16)
	PutLE16(header[20:22], FormatPCM)
	PutLE16(header[22:24], uint16(channels))
	PutLE32(header[24:28], uint32(sampleRate))
	PutLE32(header[28:32], uint32(byteRate))
	PutLE16(header[32:34], uint16(blockAlign))
	PutLE16(header[34:36], uint16(bitsPerSample))

	copy(header[36:40], "data")
	PutLE32(header[40:44], uint32(dataSize))

	return append(header, pcm...)
}

// IsWAV reports whether data starts with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// Parse walks the chunks of a WAV stream and returns its format and the
// contents of the data chunk. Chunks other than "fmt " and "data" are skipped.
// A data chunk whose declared size runs past the end of the stream is
// truncated to what is present.
func Parse(data []byte) (Header, []byte, error) {
	if !IsWAV(data) {
		return Header{}, nil, ErrNotWAV
	}

	var (
		hdr     Header
		haveFmt bool
	)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return Header{}, nil, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedFormat)
			}
			hdr = Header{
				AudioFormat:   int(binary.LittleEndian.Uint16(data[body:])),
				Channels:      int(binary.LittleEndian.Uint16(data[body+2:])),
				SampleRate:    int(binary.LittleEndian.Uint32(data[body+4:])),
				BitsPerSample: int(binary.LittleEndian.Uint16(data[body+14:])),
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Header{}, nil, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedFormat)
			}
			if hdr.AudioFormat != FormatPCM && hdr.AudioFormat != FormatExtensible {
				return Header{}, nil, fmt.Errorf("%w: audio format %d", ErrUnsupportedFormat, hdr.AudioFormat)
			}
			end := body + size
			if end > len(data) || end < body {
				end = len(data)
			}
			return hdr, data[body:end], nil
		}

		// Chunks are word aligned.
		offset = body + size + size%2
	}

	return Header{}, nil, fmt.Errorf("%w: no data chunk", ErrUnsupportedFormat)
}

// PutLE16 writes a uint16 value in little-endian format to a byte slice.
func PutLE16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

// PutLE32 writes a uint32 value in little-endian format to a byte slice.
func PutLE32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// CreateMinimal creates a WAV file of numSamples frames of silence.
func CreateMinimal(numSamples, sampleRate, channels, bitsPerSample int) []byte {
	dataSize := numSamples * channels * (bitsPerSample / 8)
	return WrapRawPCM(make([]byte, dataSize), sampleRate, channels, bitsPerSample)
}
