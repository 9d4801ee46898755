package output

import (
	"github.com/fatih/color"
)

// ColorScheme defines the colors used for the live display and the HTTP
// debug dump.
type ColorScheme struct {
	Header    *color.Color
	Progress  *color.Color
	Stage     *color.Color
	Value     *color.Color
	Dim       *color.Color
	Method    *color.Color
	HeaderKey *color.Color
	Success   *color.Color
	Warning   *color.Color
	Error     *color.Color
}

// DefaultColorScheme returns the default color scheme
func DefaultColorScheme() *ColorScheme {
	s := &ColorScheme{
		Header:    color.New(color.Bold),
		Progress:  color.New(color.FgGreen),
		Stage:     color.New(color.FgMagenta),
		Value:     color.New(color.FgCyan),
		Dim:       color.New(color.Faint),
		Method:    color.New(color.FgBlue, color.Bold),
		HeaderKey: color.New(color.FgYellow),
		Success:   color.New(color.FgGreen),
		Warning:   color.New(color.FgYellow),
		Error:     color.New(color.FgRed),
	}
	// Whether to colour is decided per Console, not by fatih/color's
	// global stdout check.
	for _, c := range s.all() {
		c.EnableColor()
	}
	return s
}

// NoColorScheme returns a color scheme with all colors disabled
func NoColorScheme() *ColorScheme {
	s := DefaultColorScheme()
	for _, c := range s.all() {
		c.DisableColor()
	}
	return s
}

func (s *ColorScheme) all() []*color.Color {
	return []*color.Color{
		s.Header, s.Progress, s.Stage, s.Value, s.Dim,
		s.Method, s.HeaderKey, s.Success, s.Warning, s.Error,
	}
}

// Status picks the colour for an HTTP status code.
func (s *ColorScheme) Status(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return s.Success
	case code >= 300 && code < 400:
		return s.Warning
	default:
		return s.Error
	}
}

// ErrorRate picks the colour for an error ratio.
func (s *ColorScheme) ErrorRate(rate float64) *color.Color {
	switch {
	case rate > 0.05:
		return s.Error
	case rate > 0.01:
		return s.Warning
	default:
		return s.Success
	}
}

// SuccessIcon returns a checkmark symbol
func (s *ColorScheme) SuccessIcon() string {
	return s.Success.Sprint("✓")
}

// ErrorIcon returns an X symbol
func (s *ColorScheme) ErrorIcon() string {
	return s.Error.Sprint("✗")
}
