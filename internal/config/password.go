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

// PasswordSource supplies the DataGateway login password.
type PasswordSource interface {
	Password() (string, error)
}

// FilePassword reads the password from the first line of a file.
type FilePassword struct {
	Path string
}

// Password returns the first line of the file with surrounding whitespace removed.
func (f FilePassword) Password() (string, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return "", fmt.Errorf("open password file: %w", err)
	}
	defer file.Close()

	line, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password file: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// PromptPassword asks for the password on the terminal without echo.
type PromptPassword struct {
	In     *os.File
	Out    io.Writer
	Prompt string
}

// Password prompts and reads one line from the terminal.
func (p PromptPassword) Password() (string, error) {
	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}
	prompt := p.Prompt
	if prompt == "" {
		prompt = "Password: "
	}

	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("password prompt requires a terminal; use --password-file")
	}

	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

// PasswordSource returns a FilePassword when PasswordFile is set and a
// terminal prompt otherwise.
func (c *Config) PasswordSource() PasswordSource {
	if c.PasswordFile != "" {
		return FilePassword{Path: c.PasswordFile}
	}
	return PromptPassword{}
}
