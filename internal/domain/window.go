package domain

import "fmt"

// WindowState is the collapse state of the chat widget.
type WindowState string

const (
	// WindowWrapped hides the transcript and input; only the header shows.
	WindowWrapped WindowState = "wrapped"
	// WindowUnwrapped shows the whole widget.
	WindowUnwrapped WindowState = "unwrapped"
)

// DefaultWindowState is used when nothing was stored or the read failed.
const DefaultWindowState = WindowWrapped

// Toggle returns the opposite state.
func (s WindowState) Toggle() WindowState {
	if s == WindowUnwrapped {
		return WindowWrapped
	}
	return WindowUnwrapped
}

// ParseWindowState validates a stored or submitted window state.
func ParseWindowState(s string) (WindowState, error) {
	switch WindowState(s) {
	case WindowWrapped, WindowUnwrapped:
		return WindowState(s), nil
	}
	return "", fmt.Errorf("unknown window state %q", s)
}

// Theme is the site colour scheme chosen by the visitor.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// DefaultTheme is used when the visitor never picked one.
const DefaultTheme = ThemeLight

// ParseTheme validates a stored or submitted theme.
func ParseTheme(s string) (Theme, error) {
	switch Theme(s) {
	case ThemeLight, ThemeDark:
		return Theme(s), nil
	}
	return "", fmt.Errorf("unknown theme %q", s)
}
