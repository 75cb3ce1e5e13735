package client

import (
	"errors"
	"testing"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

func TestParseInput(t *testing.T) {
	tests := []struct {
		name          string
		line          string
		wantAction    Action
		wantKind      protocol.Kind
		wantContent   string
		wantRecipient string
		wantErr       error
	}{
		{name: "empty", line: "   ", wantAction: ActionNone},
		{name: "chat", line: "hello there", wantAction: ActionSend, wantKind: protocol.KindChat, wantContent: "hello there"},
		{name: "chat trimmed", line: "  hi \n", wantAction: ActionSend, wantKind: protocol.KindChat, wantContent: "hi"},
		{name: "quit", line: "/quit", wantAction: ActionQuit},
		{name: "help", line: "/help", wantAction: ActionHelp},
		{name: "users", line: "/users", wantAction: ActionSend, wantKind: protocol.KindCommand, wantContent: "users"},
		{name: "unknown command", line: "/dance wildly", wantAction: ActionSend, wantKind: protocol.KindCommand, wantContent: "dance wildly"},
		{name: "dm", line: "/dm bob see you   later", wantAction: ActionSend, wantKind: protocol.KindDM, wantContent: "see you later", wantRecipient: "bob"},
		{name: "dm missing text", line: "/dm bob", wantErr: ErrDirectUsage},
		{name: "dm missing everything", line: "/dm", wantErr: ErrDirectUsage},
		{name: "bare slash", line: "/", wantAction: ActionNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInput(tt.line, "alice")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseInput(%q) error = %v, want %v", tt.line, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseInput(%q) error = %v", tt.line, err)
			}
			if got.Action != tt.wantAction {
				t.Fatalf("Action = %v, want %v", got.Action, tt.wantAction)
			}
			if tt.wantAction != ActionSend {
				return
			}

			m := got.Message
			if m.Kind() != tt.wantKind || m.Content() != tt.wantContent {
				t.Errorf("Message = %s %q, want %s %q", m.Kind(), m.Content(), tt.wantKind, tt.wantContent)
			}
			if m.Sender() != "alice" {
				t.Errorf("Sender = %q, want alice", m.Sender())
			}
			recipient, ok := m.Recipient()
			if ok != (tt.wantRecipient != "") || recipient != tt.wantRecipient {
				t.Errorf("Recipient = %q, %v; want %q", recipient, ok, tt.wantRecipient)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	for _, name := range []string{"alice", "bob_42", "Ünïcode"} {
		if err := ValidateUsername(name); err != nil {
			t.Errorf("ValidateUsername(%q) = %v", name, err)
		}
	}
	for _, name := range []string{"", "two words", "tab\tbed", "line\n"} {
		if err := ValidateUsername(name); !errors.Is(err, ErrInvalidUsername) {
			t.Errorf("ValidateUsername(%q) = %v, want ErrInvalidUsername", name, err)
		}
	}
}

func TestHelpLines(t *testing.T) {
	lines := HelpLines()
	if len(lines) != len(Commands)+1 {
		t.Fatalf("HelpLines() returned %d lines, want %d", len(lines), len(Commands)+1)
	}
	if lines[2] != "/users: List all connected users" {
		t.Errorf("lines[2] = %q", lines[2])
	}
}
