package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize is the frame size limit used when none is configured.
const DefaultMaxFrameSize = 2048

// ErrFrameTooLarge is returned by Reader.ReadFrame when a frame exceeds the
// configured size. The oversized frame has been consumed, so the stream is
// still usable.
var ErrFrameTooLarge = errors.New("protocol: frame too large")

// Reader reads newline-delimited frames from a byte stream.
type Reader struct {
	r       *bufio.Reader
	maxSize int
}

// NewReader wraps r. Frames longer than maxSize bytes are rejected with
// ErrFrameTooLarge.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	// bufio needs room for a "\r\n" delimiter on top of the payload.
	return &Reader{r: bufio.NewReaderSize(r, maxSize+2), maxSize: maxSize}
}

// ReadHandshake reads the raw username a client sends right after connecting.
// The username is not wrapped in a frame; it is whatever the first read
// delivers, up to an optional newline, with surrounding whitespace removed.
func (r *Reader) ReadHandshake() (string, error) {
	if _, err := r.r.Peek(1); err != nil {
		return "", err
	}
	buffered, err := r.r.Peek(r.r.Buffered())
	if err != nil {
		return "", err
	}

	n := len(buffered)
	if i := bytes.IndexByte(buffered, '\n'); i >= 0 {
		n = i + 1
	}
	username := string(bytes.TrimSpace(buffered[:n]))
	if _, err := r.r.Discard(n); err != nil {
		return "", err
	}
	return username, nil
}

// ReadFrame returns the next frame without its trailing newline. Blank lines
// are skipped. A final frame without a newline is returned before io.EOF.
func (r *Reader) ReadFrame() ([]byte, error) {
	for {
		line, err := r.r.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if derr := r.discardLine(); derr != nil {
				return nil, derr
			}
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrFrameTooLarge, r.maxSize)
		case err != nil && len(bytes.TrimSpace(line)) == 0:
			return nil, err
		case err != nil:
			// Trailing frame without delimiter; the error surfaces on the next call.
			return append([]byte(nil), bytes.TrimSpace(line)...), nil
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > r.maxSize {
			return nil, fmt.Errorf("%w: limit is %d bytes", ErrFrameTooLarge, r.maxSize)
		}
		return append([]byte(nil), line...), nil
	}
}

func (r *Reader) discardLine() error {
	for {
		_, err := r.r.ReadSlice('\n')
		if err == nil {
			return nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return err
		}
	}
}

// WriteFrame encodes m and writes it followed by a newline in a single Write.
func WriteFrame(w io.Writer, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return err
	}
	return nil
}
