package dryerd

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEReader(t *testing.T) {
	r := NewSSEReader(strings.NewReader("data: {\"a\":1}\n\n\ndata: {\"b\":2}\n\n{\"c\":3}"))

	payload, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(payload))

	payload, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(payload))

	payload, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"c":3}`, string(payload), "unterminated last event")

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadSSE(t *testing.T) {
	payload, err := ReadSSE(strings.NewReader("data: line1\ndata: line2\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "line1\nline2", string(payload))
}

func TestSSEReader_UnterminatedData(t *testing.T) {
	r := NewSSEReader(strings.NewReader("data: first\ndata: last"))

	payload, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "first\nlast", string(payload))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
