package wire

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	cases := [][]byte{
		[]byte(`{}`),
		[]byte(`{"jsonrpc":"2.0","method":"select","id":"abc"}`),
		[]byte(``),
		bytes.Repeat([]byte("x"), 64*1024),
	}

	for _, payload := range cases {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, payload))

		got, err := ReadFrame(&buf)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
		assert.Equal(t, 0, buf.Len(), "frame reader must consume exactly the frame")
	}
}

func TestReadFrameTruncatedLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x01}))
	assert.ErrorIs(t, err, ErrTruncatedLength)
}

func TestReadFrameEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrTruncatedLength)
}

func TestReadFrameOversizeRejected(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxFrameBytes+1)
	_, err := ReadFrame(bytes.NewReader(header[:]))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestWriteFrameOversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, make([]byte, MaxFrameBytes+1))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, 0, buf.Len())
}

func TestReadFramePayloadCutShort(t *testing.T) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], 10)
	r := io.MultiReader(bytes.NewReader(header[:]), bytes.NewReader([]byte("abc")))
	_, err := ReadFrame(r)
	require.Error(t, err)
}
