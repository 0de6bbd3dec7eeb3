package dryerd

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
)

// An SSEReader reads the events of a monitor stream.
type SSEReader struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		r: bufio.NewReaderSize(r, 64<<10),
	}
}

// Next returns the payload of the next event.
// A "data: " field prefix is stripped when present.
func (s *SSEReader) Next() ([]byte, error) {
	s.buf.Reset()

	for {
		line, err := s.r.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")
		if err == io.EOF {
			if len(line) > 0 {
				s.append(line)
			}
			if s.buf.Len() > 0 {
				return s.buf.Bytes(), nil
			}
			return nil, io.EOF
		}

		if len(line) == 0 {
			if s.buf.Len() == 0 {
				continue // Keep-alive
			}
			return s.buf.Bytes(), nil
		}

		s.append(line)
	}
}

func (s *SSEReader) append(line []byte) {
	if s.buf.Len() > 0 {
		s.buf.WriteByte('\n')
	}
	s.buf.Write(bytes.TrimPrefix(line, []byte("data: ")))
}

// ReadSSE reads a single event payload from r.
func ReadSSE(r io.Reader) ([]byte, error) {
	return NewSSEReader(r).Next()
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, payload []byte) error {
	_, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n'))
	if err != nil {
		return err
	}

	return rc.Flush()
}
