package projection

// AppTimeWindow names a rolling activity window used to filter threads
// and reports by recency.
type AppTimeWindow int

const (
	WindowHours4 AppTimeWindow = iota
	WindowAll
)

const fourHoursInSeconds = 4 * 60 * 60

// Cutoff returns the unix-seconds threshold before which an item is
// excluded from this window, given the current time. WindowAll has no
// cutoff. The result is clamped to 0 rather than going negative (spec 8).
func (w AppTimeWindow) Cutoff(now int64) int64 {
	if w == WindowAll {
		return 0
	}
	cutoff := now - fourHoursInSeconds
	if cutoff < 0 {
		return 0
	}
	return cutoff
}
