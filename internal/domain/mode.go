package domain

import (
	"errors"
	"fmt"
)

var (
	ErrModeNotSet  = errors.New("analysis mode is not set")
	ErrInvalidMode = errors.New("invalid analysis mode")
)

// Mode selects which event stream a run analyzes. It is persisted in the
// parameter store and read once at the start of every run.
type Mode string

const (
	ModeCases  Mode = "cases"
	ModeHealth Mode = "health"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCases:
		return ModeCases, nil
	case ModeHealth:
		return ModeHealth, nil
	case "":
		return "", ErrModeNotSet
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

func (m Mode) String() string {
	return string(m)
}
