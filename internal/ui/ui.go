// Package ui is the interactive surface: line prompts, selections, and
// colored status output. Choreographies depend on the Prompter interface so
// tests can script answers.
package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"golang.org/x/term"
)

// Prompter asks the operator questions.
type Prompter interface {
	// Input reads one line, returning defaultValue on empty input.
	Input(label, defaultValue string) (string, error)
	// Select presents numbered options and returns the chosen one.
	Select(label string, options []string) (string, error)
	// Confirm asks a yes/no question.
	Confirm(label string, defaultYes bool) (bool, error)
	// Password reads a line without echo.
	Password(label string) (string, error)
}

// Terminal is the real Prompter backed by the controlling terminal.
type Terminal struct{}

func (Terminal) Input(label, defaultValue string) (string, error) {
	prompt := label
	if defaultValue != "" {
		prompt = fmt.Sprintf("%s [%s]", label, defaultValue)
	}
	rl, err := readline.New(prompt + ": ")
	if err != nil {
		return "", fmt.Errorf("failed to open prompt: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if err != nil {
		return "", fmt.Errorf("prompt aborted: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue, nil
	}
	return line, nil
}

func (t Terminal) Select(label string, options []string) (string, error) {
	fmt.Println(label)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i+1, opt)
	}
	for {
		answer, err := t.Input(fmt.Sprintf("Choice (1-%d)", len(options)), "")
		if err != nil {
			return "", err
		}
		n, err := strconv.Atoi(answer)
		if err == nil && n >= 1 && n <= len(options) {
			return options[n-1], nil
		}
		fmt.Printf("Please enter a number between 1 and %d\n", len(options))
	}
}

func (t Terminal) Confirm(label string, defaultYes bool) (bool, error) {
	suffix := "y/N"
	if defaultYes {
		suffix = "Y/n"
	}
	answer, err := t.Input(fmt.Sprintf("%s (%s)", label, suffix), "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	case "":
		return defaultYes, nil
	}
	return false, nil
}

func (Terminal) Password(label string) (string, error) {
	fmt.Printf("%s: ", label)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(data), nil
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
)

// Step announces the beginning of a choreography step.
func Step(format string, args ...any) {
	fmt.Printf("%s %s\n", cyan("→"), fmt.Sprintf(format, args...))
}

// OK reports a completed step.
func OK(format string, args ...any) {
	fmt.Printf("  %s %s\n", green("✓"), fmt.Sprintf(format, args...))
}

// Warn reports a non-fatal problem.
func Warn(format string, args ...any) {
	fmt.Printf("  %s %s\n", yellow("⚠"), fmt.Sprintf(format, args...))
}

// Fail reports a failed step.
func Fail(format string, args ...any) {
	fmt.Printf("  %s %s\n", red("✗"), fmt.Sprintf(format, args...))
}
