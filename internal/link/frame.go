// Package link streams telemetry frames to a host over a serial line.
//
// Each frame is a CBOR-encoded telemetry.Frame followed by a big-endian
// CRC-16-CCITT, byte-stuffed and delimited by START and END bytes:
//
//	START | stuff(cbor | crc_hi | crc_lo) | END
package link

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/cjeanneret/ScanGo/internal/logic/telemetry"
)

// Framing bytes.
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// MaxPayloadSize bounds the CBOR body of one frame.
const MaxPayloadSize = 1024

const (
	crcInitial    = 0xFFFF
	crcPolynomial = 0x1021
)

var (
	ErrFraming = errors.New("malformed frame")
	ErrCRC     = errors.New("frame CRC mismatch")
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("link: cbor enc mode: %v", err))
	}
	return em
}

// Encode builds the wire bytes for f.
func Encode(f telemetry.Frame) ([]byte, error) {
	body, err := encMode.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("frame too large: %d bytes (max %d)", len(body), MaxPayloadSize)
	}

	crc := CRC(body)
	data := append(body, byte(crc>>8), byte(crc&0xFF))

	packet := make([]byte, 0, len(data)*2+2)
	packet = append(packet, StartByte)
	packet = stuff(packet, data)
	packet = append(packet, EndByte)
	return packet, nil
}

// Decode parses one complete frame as produced by Encode.
func Decode(packet []byte) (telemetry.Frame, error) {
	var f telemetry.Frame
	if len(packet) < 2 || packet[0] != StartByte || packet[len(packet)-1] != EndByte {
		return f, ErrFraming
	}
	data, err := unstuff(packet[1 : len(packet)-1])
	if err != nil {
		return f, err
	}
	if len(data) < 3 {
		return f, ErrFraming
	}

	body := data[:len(data)-2]
	got := uint16(data[len(data)-2])<<8 | uint16(data[len(data)-1])
	if want := CRC(body); got != want {
		return f, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrCRC, got, want)
	}
	if err := cbor.Unmarshal(body, &f); err != nil {
		return f, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// CRC computes the CRC-16-CCITT of data.
func CRC(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func stuff(dst, data []byte) []byte {
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			dst = append(dst, EscByte, b^EscXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

func unstuff(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	esc := false
	for _, b := range data {
		switch {
		case esc:
			out = append(out, b^EscXor)
			esc = false
		case b == EscByte:
			esc = true
		case b == StartByte || b == EndByte:
			return nil, ErrFraming
		default:
			out = append(out, b)
		}
	}
	if esc {
		return nil, fmt.Errorf("%w: dangling escape", ErrFraming)
	}
	return out, nil
}
