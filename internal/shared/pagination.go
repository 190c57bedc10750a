package shared

const (
	// DefaultPageSize applies when callers do not ask for a page size.
	DefaultPageSize = 50
	// MaxPageSize bounds listings regardless of what callers ask for.
	MaxPageSize = 200
)

// ClampPageSize normalises a requested page size into [1, MaxPageSize].
func ClampPageSize(perPage int) int {
	if perPage <= 0 {
		return DefaultPageSize
	}
	if perPage > MaxPageSize {
		return MaxPageSize
	}
	return perPage
}
