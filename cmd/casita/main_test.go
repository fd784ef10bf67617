package main

import (
	"context"
	"testing"

	"github.com/maximilian-tech/casita/tracedata"
)

// memoryReader is a minimal in-process Reader/Writer pair used only to
// exercise run()'s wiring end to end, standing in for a real trace format
// package (trace I/O is an external collaborator, ).
type memoryReader struct {
	events []tracedata.Event
}

func (r *memoryReader) Read(cb tracedata.Callbacks) error {
	for _, ev := range r.events {
		if err := cb.Event(ev); err != nil {
			return err
		}
	}
	return nil
}

type memoryWriter struct {
	written []tracedata.AnnotatedEvent
	closed  bool
}

func (w *memoryWriter) Write(ae tracedata.AnnotatedEvent) error {
	w.written = append(w.written, ae)
	return nil
}

func (w *memoryWriter) Close() error {
	w.closed = true
	return nil
}

func TestRunSingleRankEndToEnd(t *testing.T) {
	reader := &memoryReader{events: []tracedata.Event{
		{Location: 0, Time: 0, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseEnter},
		{Location: 0, Time: 10, Kind: tracedata.EventGeneric, Phase: tracedata.PhaseLeave},
	}}
	writer := &memoryWriter{}
	tracedata.RegisterReader("casita-test-memory", func(path string) (tracedata.Reader, error) { return reader, nil })
	tracedata.RegisterWriter("casita-test-memory", func(path string, opts tracedata.WriterOptions) (tracedata.Writer, error) { return writer, nil })

	*input = "unused"
	*output = "unused"
	*format = "casita-test-memory"
	*ranks = 1
	*printCriticalPath = false
	defer func() {
		*input, *output, *format, *ranks = "", "", "otf2", 1
	}()

	if err := run(context.Background()); err != nil {
		t.Fatalf("run() = %v", err)
	}
	if len(writer.written) != 2 {
		t.Fatalf("writer got %d events, want 2", len(writer.written))
	}
	if !writer.closed {
		t.Error("writer was never closed")
	}
}

func TestRunRequiresInput(t *testing.T) {
	*input = ""
	if err := run(context.Background()); err == nil {
		t.Fatal("run() with no --input should fail")
	}
}

func TestRunRejectsUnregisteredFormat(t *testing.T) {
	*input = "x"
	*format = "no-such-format"
	defer func() { *input, *format = "", "otf2" }()
	if err := run(context.Background()); err == nil {
		t.Fatal("run() with an unregistered format should fail")
	}
}

func TestRunMultiRankRequiresRankReader(t *testing.T) {
	reader := &memoryReader{}
	tracedata.RegisterReader("casita-test-singlerank-only", func(path string) (tracedata.Reader, error) { return reader, nil })

	*input = "x"
	*format = "casita-test-singlerank-only"
	*ranks = 2
	defer func() { *input, *format, *ranks = "", "otf2", 1 }()

	if err := run(context.Background()); err == nil {
		t.Fatal("run() with ranks=2 against a non-RankReader should fail")
	}
}
