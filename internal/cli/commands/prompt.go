package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the user. Secrets are read without echo
// when input is a terminal.
type prompter struct {
	in          *bufio.Reader
	out         io.Writer
	fd          int
	isTTY       bool
	interactive bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok {
		p.fd = int(f.Fd())
		p.isTTY = term.IsTerminal(p.fd)
	}
	p.interactive = p.isTTY
	return p
}

// Line prints label and reads one trimmed line
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Secret prints label and reads a value without echoing it
func (p *prompter) Secret(label string) (string, error) {
	if !p.isTTY {
		return p.Line(label)
	}

	fmt.Fprint(p.out, label)
	secret, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(secret), nil
}

// Interactive reports whether missing answers may be prompted for
func (p *prompter) Interactive() bool {
	return p.interactive
}
