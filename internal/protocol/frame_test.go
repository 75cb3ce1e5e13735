package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadFrameSequence(t *testing.T) {
	input := "{\"a\":1}\n\n  \r\n{\"b\":2}\r\n{\"c\":3}"
	r := NewReader(strings.NewReader(input), 64)

	want := []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}
	for _, w := range want {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v, want frame %s", err, w)
		}
		if string(frame) != w {
			t.Errorf("ReadFrame() = %q, want %q", frame, w)
		}
	}

	if _, err := r.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

// TestReadFrameTooLarge verifies an oversized frame is skipped without
// breaking the frames that follow it.
func TestReadFrameTooLarge(t *testing.T) {
	big := strings.Repeat("x", 100)
	r := NewReader(strings.NewReader(big+"\n{\"ok\":true}\n"), 16)

	if _, err := r.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("ReadFrame() error = %v, want ErrFrameTooLarge", err)
	}

	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame() after oversize error = %v", err)
	}
	if string(frame) != `{"ok":true}` {
		t.Errorf("ReadFrame() = %q", frame)
	}
}

// TestReadFrameAtLimit verifies the size limit counts the payload only, not
// the line terminator.
func TestReadFrameAtLimit(t *testing.T) {
	exact := strings.Repeat("y", 16)
	over := strings.Repeat("z", 17)
	r := NewReader(strings.NewReader(exact+"\r\n"+exact+"\n"+over+"\n"+over+"\r\n"+exact+"\n"), 16)

	for i := 0; i < 2; i++ {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v, want frame at the limit", i, err)
		}
		if string(frame) != exact {
			t.Errorf("ReadFrame() #%d = %q, want %q", i, frame, exact)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := r.ReadFrame(); !errors.Is(err, ErrFrameTooLarge) {
			t.Errorf("ReadFrame() over the limit error = %v, want ErrFrameTooLarge", err)
		}
	}
	if frame, err := r.ReadFrame(); err != nil || string(frame) != exact {
		t.Errorf("ReadFrame() after oversize = %q, %v", frame, err)
	}
}

func TestReadHandshake(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		next  string
	}{
		{name: "raw bytes", input: "alice", want: "alice"},
		{name: "newline terminated", input: "bob\n", want: "bob"},
		{name: "frame follows", input: "carol\r\n{\"type\":\"chat\"}\n", want: "carol", next: `{"type":"chat"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input), 128)
			got, err := r.ReadHandshake()
			if err != nil {
				t.Fatalf("ReadHandshake() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadHandshake() = %q, want %q", got, tt.want)
			}
			if tt.next == "" {
				return
			}
			frame, err := r.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame() error = %v", err)
			}
			if string(frame) != tt.next {
				t.Errorf("ReadFrame() = %q, want %q", frame, tt.next)
			}
		})
	}
}

func TestReadHandshakeEOF(t *testing.T) {
	r := NewReader(strings.NewReader(""), 16)
	if _, err := r.ReadHandshake(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadHandshake() error = %v, want io.EOF", err)
	}
}

func TestWriteFrameThenRead(t *testing.T) {
	var buf bytes.Buffer
	sent := []Message{NewChat("alice", "one"), NewDirect("alice", "bob", "two")}
	for _, m := range sent {
		if err := WriteFrame(&buf, m); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	r := NewReader(&buf, DefaultMaxFrameSize)
	for _, want := range sent {
		frame, err := r.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if got := Decode(frame); got != want {
			t.Errorf("Decode(ReadFrame()) = %+v, want %+v", got, want)
		}
	}
}
