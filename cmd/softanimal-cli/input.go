package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword and isTerminal are swapped out in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// promptLine prints prompt and reads one trimmed line.
func promptLine(in *bufio.Reader, w io.Writer, prompt string) (string, error) {
	if err := writef(w, "%s: ", prompt); err != nil {
		return "", err
	}
	line, err := in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echo on a terminal and as a plain
// line when stdin is piped.
func promptPassword(in *bufio.Reader, w io.Writer, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return promptLine(in, w, prompt)
	}
	if err := writef(w, "%s: ", prompt); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	_ = writeln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// confirm asks a yes/no question; anything but y/yes aborts.
func confirm(in *bufio.Reader, w io.Writer, question string) error {
	resp, err := promptLine(in, w, question+" [y/N]")
	if err != nil {
		return errors.New("aborted by user")
	}
	resp = strings.ToLower(resp)
	if resp == "y" || resp == "yes" {
		return nil
	}
	return errors.New("aborted by user")
}
