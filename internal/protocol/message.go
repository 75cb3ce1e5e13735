// Package protocol defines the chat message model and its line-based JSON
// wire format shared by the server, the client and the WebSocket gateway.
package protocol

import (
	"bytes"
	"encoding/json"
	"time"
)

// Kind identifies the purpose of a Message.
type Kind string

// Message kinds understood by the server and the client.
const (
	KindChat    Kind = "chat"
	KindStatus  Kind = "status"
	KindCommand Kind = "command"
	KindDM      Kind = "dm"
	KindError   Kind = "error"
)

// TimestampLayout is the layout of Message timestamps on the wire.
const TimestampLayout = "2006-01-02 15:04:05"

// Sender names used for messages that originate from the server itself.
const (
	ServerSender = "Server"
	SystemSender = "System"
)

// InvalidFormatContent is the content of the error Message produced for
// frames that cannot be decoded.
const InvalidFormatContent = "Invalid message format"

// now is replaced in tests.
var now = time.Now

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindChat, KindStatus, KindCommand, KindDM, KindError:
		return true
	}
	return false
}

// Message is an immutable chat message. The zero value is not useful; build
// messages with the New* constructors or Decode. A recipient can only be
// attached through NewDirect, so a Message carries a recipient if and only if
// its kind is KindDM.
type Message struct {
	kind      Kind
	content   string
	sender    string
	recipient string
	timestamp string
}

func newMessage(kind Kind, sender, content string) Message {
	return Message{
		kind:      kind,
		content:   content,
		sender:    sender,
		timestamp: now().Format(TimestampLayout),
	}
}

// NewChat creates a chat message from sender.
func NewChat(sender, content string) Message {
	return newMessage(KindChat, sender, content)
}

// NewStatus creates a status message sent by the server.
func NewStatus(content string) Message {
	return newMessage(KindStatus, ServerSender, content)
}

// NewCommand creates a command message. Clients send commands with their own
// username as sender; the server answers with ServerSender.
func NewCommand(sender, content string) Message {
	return newMessage(KindCommand, sender, content)
}

// NewDirect creates a direct message addressed to recipient.
func NewDirect(sender, recipient, content string) Message {
	m := newMessage(KindDM, sender, content)
	m.recipient = recipient
	return m
}

// NewError creates an error message attributed to SystemSender.
func NewError(content string) Message {
	return newMessage(KindError, SystemSender, content)
}

// Kind returns the message kind.
func (m Message) Kind() Kind { return m.kind }

// Content returns the message text.
func (m Message) Content() string { return m.content }

// Sender returns the username (or server name) that produced the message.
func (m Message) Sender() string { return m.sender }

// Timestamp returns the creation time formatted with TimestampLayout.
func (m Message) Timestamp() string { return m.timestamp }

// Recipient returns the addressee of a direct message. ok is false for every
// other kind.
func (m Message) Recipient() (recipient string, ok bool) {
	return m.recipient, m.kind == KindDM
}

// WithSender returns a copy of m attributed to sender.
func (m Message) WithSender(sender string) Message {
	m.sender = sender
	return m
}

type wireMessage struct {
	Type      Kind    `json:"type"`
	Content   string  `json:"content"`
	Sender    string  `json:"sender"`
	Recipient *string `json:"recipient"`
	Timestamp string  `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler using the wire field names.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		Type:      m.kind,
		Content:   m.content,
		Sender:    m.sender,
		Timestamp: m.timestamp,
	}
	if m.kind == KindDM {
		recipient := m.recipient
		w.Recipient = &recipient
	}
	return json.Marshal(w)
}

// Encode serializes m into a single frame. The result never contains a
// newline, so frames can be delimited by one.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// inboundMessage tells absent keys apart from empty values, so defaults only
// fill in what the peer left out.
type inboundMessage struct {
	Type      *Kind   `json:"type"`
	Content   string  `json:"content"`
	Sender    *string `json:"sender"`
	Recipient *string `json:"recipient"`
	Timestamp *string `json:"timestamp"`
}

// Decode parses one frame. Malformed input never fails: it yields an error
// Message with InvalidFormatContent so the caller can report it to the peer
// and keep the connection open. A missing type defaults to chat, missing
// sender to "unknown" and a missing timestamp to the current time. Keys that
// are present keep their value, even when empty.
func Decode(data []byte) Message {
	data = bytes.TrimSpace(data)

	var in inboundMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return NewError(InvalidFormatContent)
	}

	m := Message{
		kind:    KindChat,
		content: in.Content,
		sender:  "unknown",
	}
	if in.Type != nil {
		m.kind = *in.Type
	}
	if !m.kind.Valid() {
		return NewError(InvalidFormatContent)
	}
	if in.Sender != nil {
		m.sender = *in.Sender
	}
	if in.Timestamp != nil {
		m.timestamp = *in.Timestamp
	} else {
		m.timestamp = now().Format(TimestampLayout)
	}

	if m.kind == KindDM {
		if in.Recipient == nil || *in.Recipient == "" {
			return NewError(InvalidFormatContent)
		}
		m.recipient = *in.Recipient
	}
	return m
}
