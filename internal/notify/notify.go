// Package notify delivers fire-and-forget success and error messages to the
// user. Delivery never fails and never blocks the caller's outcome.
package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jedib0t/go-pretty/v6/text"
)

type Notifier interface {
	Success(msg string)
	Error(msg string, err error)
}

type Nop struct{}

func (Nop) Success(string)      {}
func (Nop) Error(string, error) {}

// LogNotifier writes messages to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

func (n LogNotifier) Success(msg string) {
	n.logger().Info(msg)
}

func (n LogNotifier) Error(msg string, err error) {
	n.logger().Error(msg, "err", err)
}

// Console prints coloured one-liners for interactive CLI use.
type Console struct {
	Out io.Writer
	// Plain disables colours.
	Plain bool
}

func (c Console) Success(msg string) {
	if c.Out == nil {
		return
	}
	if c.Plain {
		fmt.Fprintf(c.Out, "ok: %s\n", msg)
		return
	}
	fmt.Fprintln(c.Out, text.FgGreen.Sprint("✔ ")+msg)
}

func (c Console) Error(msg string, err error) {
	if c.Out == nil {
		return
	}
	line := msg
	if err != nil {
		line = fmt.Sprintf("%s: %v", msg, err)
	}
	if c.Plain {
		fmt.Fprintf(c.Out, "error: %s\n", line)
		return
	}
	fmt.Fprintln(c.Out, text.Colors{text.FgRed, text.Bold}.Sprint("✘ ")+line)
}

type Message struct {
	Level string
	Text  string
	Err   error
}

// Memory records messages; used in tests and by callers that render
// notifications later.
type Memory struct {
	mu       sync.Mutex
	messages []Message
}

func (m *Memory) Success(msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Level: "success", Text: msg})
}

func (m *Memory) Error(msg string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Message{Level: "error", Text: msg, Err: err})
}

func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}
