package domain

import "time"

const (
	day = 24 * time.Hour

	// WindowAll is the label of the unbounded window.
	WindowAll = "all"
)

// Window is a fixed trailing interval. A zero Span means all-time.
type Window struct {
	Label string
	Span  time.Duration
}

// IsAllTime reports whether the window is unbounded.
func (w Window) IsAllTime() bool {
	return w.Span == 0
}

// Contains reports whether ts falls inside the window ending at now.
func (w Window) Contains(ts, now time.Time) bool {
	if w.IsAllTime() {
		return true
	}

	return !ts.Before(now.Add(-w.Span))
}

// DefaultWindows returns the leaderboard windows from narrowest to widest.
func DefaultWindows() []Window {
	return []Window{
		{Label: "24h", Span: day},
		{Label: "3d", Span: 3 * day},
		{Label: "7d", Span: 7 * day},
		{Label: "14d", Span: 14 * day},
		{Label: "30d", Span: 30 * day},
		{Label: "60d", Span: 60 * day},
		{Label: "90d", Span: 90 * day},
		{Label: WindowAll},
	}
}

// WidestFiniteSpan returns the largest bounded span among windows.
func WidestFiniteSpan(windows []Window) time.Duration {
	var widest time.Duration
	for _, w := range windows {
		if w.Span > widest {
			widest = w.Span
		}
	}

	return widest
}
