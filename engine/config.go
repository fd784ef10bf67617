package engine

// Config mirrors the CLI surface documented for the analyzer binary
// (package cmd/casita owns flag parsing; Config is the typed result
// handed to the engine).
type Config struct {
	// Input is the trace directory/file path to read.
	Input string
	// Output is the path to write the annotated trace to.
	Output string
	// CreateOTF requests an OTF2-shaped annotated trace as output.
	CreateOTF bool
	// PrintCriticalPath requests a human-readable critical-path summary on
	// stdout in addition to the annotated trace.
	PrintCriticalPath bool
	// MergeActivities requests collapsing of adjacent same-region intervals
	// in the written trace.
	MergeActivities bool
	// NoErrors makes malformed-trace conditions fatal instead of warn-and-skip.
	NoErrors bool
	// Verbose is the glog-style verbosity level.
	Verbose int
	// MemLimitMB bounds the memory the engine's bounded caches (e.g. the
	// region-name cache) may use; 0 means a built-in default.
	MemLimitMB int
}

// DefaultConfig returns the zero-value-safe default configuration.
func DefaultConfig() Config {
	return Config{MemLimitMB: 512}
}

// regionCacheSize derives the region-name LRU's entry capacity from the
// configured memory limit: roughly 1000 cached names per configured MB,
// capped so a pathologically large --mem-limit doesn't allocate an
// unreasonable map up front.
func (c Config) regionCacheSize() int {
	n := c.MemLimitMB * 1000
	if n <= 0 {
		n = 500_000
	}
	if n > 2_000_000 {
		n = 2_000_000
	}
	return n
}
