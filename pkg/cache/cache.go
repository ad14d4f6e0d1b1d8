package cache

// Cache is a keyed store of values with a bounded lifetime.
// Absence is reported through the boolean result, never as an error.
type Cache[T any] interface {
	// Get returns the value stored under key if it has not expired.
	Get(key string) (T, bool)

	// Set stores value under key, replacing any existing entry and restarting its lifetime.
	Set(key string, value T)

	// Invalidate removes key. Missing keys are ignored.
	Invalidate(key string)

	// InvalidatePrefix removes every key starting with prefix and returns how many were removed.
	InvalidatePrefix(prefix string) int
}
