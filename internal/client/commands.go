package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

// Action tells the UI what to do with a parsed input line.
type Action int

const (
	// ActionNone means the line was empty.
	ActionNone Action = iota
	// ActionSend means Input.Message should be sent to the server.
	ActionSend
	// ActionHelp means the command list should be shown locally.
	ActionHelp
	// ActionQuit means the connection should be closed.
	ActionQuit
)

// Input is the result of parsing one line typed by the user.
type Input struct {
	Action  Action
	Message protocol.Message
}

// Command describes a slash-command for help output.
type Command struct {
	Name        string
	Description string
}

// Commands lists the slash-commands understood by the client.
var Commands = []Command{
	{Name: "help", Description: "Show available commands"},
	{Name: "users", Description: "List all connected users"},
	{Name: "dm", Description: "Send private message (/dm username message)"},
	{Name: "quit", Description: "Exit the chat"},
}

var (
	// ErrDirectUsage is returned for a /dm without recipient or text.
	ErrDirectUsage = errors.New("invalid DM format, use: /dm username message")
	// ErrInvalidUsername is returned for empty usernames or ones containing spaces.
	ErrInvalidUsername = errors.New("username cannot be empty or contain spaces")
)

// ValidateUsername applies the same rules as the server.
func ValidateUsername(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\r\n") {
		return ErrInvalidUsername
	}
	return nil
}

// ParseInput turns a line typed by username into an action. Lines starting
// with "/" are commands: /help and /quit are handled locally, /dm becomes a
// direct message and anything else is sent as a command for the server.
// Other lines are chat messages.
func ParseInput(line, username string) (Input, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Input{Action: ActionNone}, nil
	}

	if !strings.HasPrefix(line, "/") {
		return Input{Action: ActionSend, Message: protocol.NewChat(username, line)}, nil
	}

	command := strings.TrimPrefix(line, "/")
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return Input{Action: ActionNone}, nil
	}

	switch fields[0] {
	case "quit":
		return Input{Action: ActionQuit}, nil
	case "help":
		return Input{Action: ActionHelp}, nil
	case "dm":
		if len(fields) < 3 {
			return Input{}, ErrDirectUsage
		}
		content := strings.Join(fields[2:], " ")
		return Input{Action: ActionSend, Message: protocol.NewDirect(username, fields[1], content)}, nil
	default:
		return Input{Action: ActionSend, Message: protocol.NewCommand(username, command)}, nil
	}
}

// HelpLines renders Commands one per line.
func HelpLines() []string {
	lines := make([]string, 0, len(Commands)+1)
	lines = append(lines, "Available commands:")
	for _, c := range Commands {
		lines = append(lines, fmt.Sprintf("/%s: %s", c.Name, c.Description))
	}
	return lines
}
