// Package wire implements the length-prefixed JSON framing used on the
// driver process's Unix domain socket: a 4-byte big-endian length prefix
// followed by that many bytes of UTF-8 JSON.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameBytes is the largest single frame the wire protocol accepts.
// Frames declaring a larger length are rejected as a connection-level error.
const MaxFrameBytes = 10 * 1024 * 1024

// ErrFrameTooLarge is returned when a peer declares a length over MaxFrameBytes.
var ErrFrameTooLarge = fmt.Errorf("wire: frame exceeds %d bytes", MaxFrameBytes)

// ErrTruncatedLength is returned when fewer than 4 bytes are available for
// the length prefix (the connection closed or was cut off mid-header).
var ErrTruncatedLength = errors.New("wire: truncated length prefix")

// WriteFrame writes the 4-byte big-endian length prefix for payload followed
// by payload itself. It is the caller's responsibility to have already
// marshaled payload to JSON.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. It returns
// ErrTruncatedLength if the stream ends before the length prefix is
// complete, ErrFrameTooLarge if the declared length exceeds MaxFrameBytes,
// and the underlying io error otherwise.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrTruncatedLength
		}
		return nil, fmt.Errorf("wire: read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("wire: read payload: %w", err)
		}
	}
	return payload, nil
}
