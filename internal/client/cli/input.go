package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword and isTerminal are test seams for the x/term calls.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

func readLine(reader *bufio.Reader) (string, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// prompt prints label and reads one line.
func (a *App) prompt(label string) (string, error) {
	if _, err := fmt.Fprintf(a.out, "%s: ", label); err != nil {
		return "", err
	}
	return readLine(a.in)
}

// promptPassword reads a secret without echo when stdin is a terminal and
// falls back to a plain line otherwise, so scripts can pipe it in.
func (a *App) promptPassword(label string) (string, error) {
	fmt.Fprintf(a.out, "%s: ", label)
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return readLine(a.in)
	}
	pw, err := readPassword(fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// valueOrPrompt returns v when set, otherwise asks for it.
func (a *App) valueOrPrompt(v, label string) (string, error) {
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}
	return a.prompt(label)
}
