// Package notify delivers one-shot user notifications (toasts) to the
// terminal.
package notify

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Variant selects how a notification is presented
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantDestructive Variant = "destructive"
)

// Notification is a single toast
type Notification struct {
	Title       string
	Description string
	Variant     Variant
}

// Notifier shows notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// Success builds a default notification
func Success(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDefault}
}

// Failure builds a destructive notification
func Failure(title, description string) Notification {
	return Notification{Title: title, Description: description, Variant: VariantDestructive}
}

var (
	successTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failureTitle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	description  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// Console writes styled notifications to an io.Writer
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console notifier writing to out
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Notify renders n as a single line
func (c *Console) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mark, style := "✓", successTitle
	if n.Variant == VariantDestructive {
		mark, style = "✗", failureTitle
	}

	line := style.Render(mark + " " + n.Title)
	if n.Description != "" {
		line += " " + description.Render(n.Description)
	}
	fmt.Fprintln(c.out, line)
}

// Recorder keeps notifications in memory
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

// Notify records n
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// All returns every recorded notification, oldest first
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

// Last returns the most recent notification
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
