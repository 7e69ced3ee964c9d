package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Op: OpPut, Key: "key00", Value: "value00"}
	require.NoError(t, WriteFrame(&buf, req))

	// The header carries the body length, big endian.
	header := buf.Bytes()[:headerSize]
	assert.EqualValues(t, buf.Len()-headerSize, binary.BigEndian.Uint32(header))

	var got Request
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, *req, got)
}

func TestFrameResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := &Response{
		Op:    OpScan,
		Pairs: []Pair{{Key: "key00", Value: "value00"}, {Key: "key01", Value: "value01"}},
	}
	require.NoError(t, WriteFrame(&buf, resp))

	var got Response
	require.NoError(t, ReadFrame(&buf, &got))
	assert.Equal(t, *resp, got)
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	req := &Request{Op: OpPut, Value: strings.Repeat("x", maxFrameSize)}
	assert.Error(t, WriteFrame(&buf, req))

	// An oversized length prefix is rejected before allocating.
	var header [headerSize]byte
	binary.BigEndian.PutUint32(header[:], maxFrameSize+1)
	var got Request
	assert.Error(t, ReadFrame(bytes.NewReader(header[:]), &got))
}

func TestFrameShortRead(t *testing.T) {
	var got Request
	err := ReadFrame(bytes.NewReader(nil), &got)
	assert.ErrorIs(t, err, io.EOF)
}
