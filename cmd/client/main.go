package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Tyrowin/tcpchat/internal/client"
	"github.com/Tyrowin/tcpchat/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	host := flag.String("host", "127.0.0.1", "chat server host")
	port := flag.Int("port", 12000, "chat server port")
	username := flag.String("user", "", "username (prompted when empty)")
	flag.Parse()

	name := strings.TrimSpace(*username)
	stdin := bufio.NewReader(os.Stdin)
	for client.ValidateUsername(name) != nil {
		var err error
		if name, err = promptUsername(stdin); err != nil {
			return err
		}
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	fmt.Printf("Connecting to %s...\n", addr)

	c, welcome, err := client.Dial(context.Background(), addr, name, client.Options{})
	if errors.Is(err, client.ErrUsernameRejected) {
		return errors.New(welcome.Content())
	}
	if err != nil {
		return fmt.Errorf("%w (make sure the server is running at %s)", err, addr)
	}
	defer c.Close()

	_, err = tea.NewProgram(tui.New(c, &welcome), tea.WithAltScreen()).Run()
	return err
}

func promptUsername(in *bufio.Reader) (string, error) {
	fmt.Print("Enter your username: ")
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(line)
	if err := client.ValidateUsername(name); err != nil {
		fmt.Println("Invalid username. Username cannot be empty or contain spaces.")
	}
	return name, nil
}
