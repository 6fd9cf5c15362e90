package model

import (
	"fmt"
	"time"
)

// Window is one of the fixed lookback periods used for fee sampling.
type Window int

const (
	Window24h Window = iota
	Window7d
	Window30d
)

// Windows lists every lookback period in ascending length.
var Windows = []Window{Window24h, Window7d, Window30d}

// Hours returns the window length in hours.
func (w Window) Hours() float64 {
	switch w {
	case Window24h:
		return 24
	case Window7d:
		return 168
	case Window30d:
		return 720
	default:
		return 0
	}
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return time.Duration(w.Hours()) * time.Hour
}

func (w Window) String() string {
	switch w {
	case Window24h:
		return "24h"
	case Window7d:
		return "7d"
	case Window30d:
		return "30d"
	default:
		return fmt.Sprintf("window(%d)", int(w))
	}
}

// ParseWindow accepts the labels produced by String.
func ParseWindow(s string) (Window, error) {
	for _, w := range Windows {
		if w.String() == s {
			return w, nil
		}
	}
	return 0, fmt.Errorf("unknown window %q", s)
}

func (w Window) MarshalText() ([]byte, error) {
	return []byte(w.String()), nil
}

func (w *Window) UnmarshalText(text []byte) error {
	parsed, err := ParseWindow(string(text))
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}
