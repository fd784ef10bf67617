package tracedata

import "fmt"

// ReaderFactory opens a Reader over the trace at path. Concrete factories
// are registered by an external trace-format package (trace
// I/O is an external collaborator) -- the core never imports one directly.
type ReaderFactory func(path string) (Reader, error)

// WriterOptions carries the output-shaping CLI flags a Writer factory may
// honor (--create-otf / --merge-activities).
type WriterOptions struct {
	CreateOTF       bool
	MergeActivities bool
}

// WriterFactory opens a Writer that serializes to path under opts.
type WriterFactory func(path string, opts WriterOptions) (Writer, error)

// RankReader is an optional capability a Reader may implement when its
// underlying format can demultiplex a captured trace into the per-rank
// event streams a multi-rank analyzer run requires: the replay layer and
// critical-path engine both assume the analyzer runs with the same rank
// count as the original program. A Reader that only implements Reader is
// usable for a single-rank run.
type RankReader interface {
	ReadRank(rank int, cb Callbacks) error
}

var (
	readerFactories = map[string]ReaderFactory{}
	writerFactories = map[string]WriterFactory{}
)

// RegisterReader makes a trace format's Reader constructor available under
// name, for cmd/casita's --format flag to look up. Intended to be called
// from an external reader package's init(), the way image.RegisterFormat or
// database/sql.Register work.
func RegisterReader(name string, f ReaderFactory) {
	readerFactories[name] = f
}

// RegisterWriter is RegisterReader's counterpart for Writer constructors.
func RegisterWriter(name string, f WriterFactory) {
	writerFactories[name] = f
}

// OpenReader looks up the Reader registered under name and opens path with
// it. No trace format is registered by this module itself -- trace I/O is
// explicitly out of the core's scope -- so this fails with
// a descriptive error unless the caller has linked in a reader package.
func OpenReader(name, path string) (Reader, error) {
	f, ok := readerFactories[name]
	if !ok {
		return nil, fmt.Errorf("tracedata: no reader registered for format %q; link in a package that calls tracedata.RegisterReader(%q, ...)", name, name)
	}
	return f(path)
}

// OpenWriter is OpenReader's counterpart for Writers.
func OpenWriter(name, path string, opts WriterOptions) (Writer, error) {
	f, ok := writerFactories[name]
	if !ok {
		return nil, fmt.Errorf("tracedata: no writer registered for format %q; link in a package that calls tracedata.RegisterWriter(%q, ...)", name, name)
	}
	return f(path, opts)
}
