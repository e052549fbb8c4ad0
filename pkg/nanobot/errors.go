package nanobot

import (
	"errors"
	"strings"
)

var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrSectionNotFound = errors.New("config section not found")
	ErrSkillNotFound   = errors.New("skill not found")
	ErrSkillExists     = errors.New("skill already exists")
	ErrInvalidName     = errors.New("invalid name")
	ErrInvalidPath     = errors.New("invalid path")
	ErrInvalidJob      = errors.New("invalid cron job")
)

// CommandError carries the output of a nanobot CLI invocation that exited
// non-zero. Its message is shown to the user as is.
type CommandError struct {
	Output string
}

func (e *CommandError) Error() string {
	return e.Output
}

func commandError(stdout, stderr, fallback string) *CommandError {
	out := strings.TrimSpace(stderr)
	if out == "" {
		out = strings.TrimSpace(stdout)
	}
	if out == "" {
		out = fallback
	}
	return &CommandError{Output: out}
}
