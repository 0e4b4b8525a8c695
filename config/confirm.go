package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrUnattended is returned by a Confirmer when there is no one to ask.
var ErrUnattended = errors.New("no interactive confirmation channel")

// Confirmer asks a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) {
	return f(prompt)
}

// AlwaysConfirm confirms without asking.
var AlwaysConfirm = ConfirmFunc(func(string) (bool, error) { return true, nil })

// PromptConfirmer writes the prompt to Out and reads one line from In. Only
// "y" (in any case) confirms. End of input means nobody is there to answer.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

func (c PromptConfirmer) Confirm(prompt string) (bool, error) {
	_, _ = fmt.Fprintf(c.Out, "%s (y/n): ", prompt)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return false, ErrUnattended
		}
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(line), "y"), nil
}

// TerminalConfirmer prompts only when In is a terminal and reports
// ErrUnattended otherwise.
type TerminalConfirmer struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalConfirmer returns a TerminalConfirmer on the process's stdin
// and stderr.
func NewTerminalConfirmer() TerminalConfirmer {
	return TerminalConfirmer{In: os.Stdin, Out: os.Stderr}
}

func (c TerminalConfirmer) Confirm(prompt string) (bool, error) {
	if c.In == nil || !term.IsTerminal(int(c.In.Fd())) {
		return false, ErrUnattended
	}
	return PromptConfirmer{In: c.In, Out: c.Out}.Confirm(prompt)
}
