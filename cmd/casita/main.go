// Command casita drives the offline trace analyzer over a single invocation:
// it parses the documented CLI surface (CLI argument parsing is itself an
// external-collaborator concern), opens the requested trace format's
// Reader/Writer (registered by an external tracedata package the way
// image.RegisterFormat or
// database/sql.Register work), wires the three paradigm rule sets onto one
// engine.Engine per analyzer rank, runs the critical-path engine across all
// ranks, and writes the annotated trace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/maximilian-tech/casita/cpath"
	"github.com/maximilian-tech/casita/engine"
	"github.com/maximilian-tech/casita/paradigm/mpi"
	"github.com/maximilian-tech/casita/paradigm/offload"
	"github.com/maximilian-tech/casita/paradigm/omp"
	"github.com/maximilian-tech/casita/replay"
	"github.com/maximilian-tech/casita/tracedata"
)

var (
	input             = flag.String("input", "", "Path to the trace to analyze.")
	output            = flag.String("output", "", "Path to write the annotated trace to; if empty, no trace is written.")
	format            = flag.String("format", "otf2", "Trace format name, as registered by a linked-in tracedata reader/writer package.")
	ranks             = flag.Int("ranks", 1, "Number of analyzer ranks to replay the trace's communication pattern across.")
	createOTF         = flag.Bool("create-otf", false, "Write the annotated trace in OTF2 shape.")
	printCriticalPath = flag.Bool("print-critical-path", false, "Print a critical-path summary to stdout in addition to writing the annotated trace.")
	mergeActivities   = flag.Bool("merge-activities", false, "Collapse adjacent same-region intervals in the written trace.")
	noErrors          = flag.Bool("no-errors", false, "Treat malformed-trace conditions as fatal instead of warn-and-skip.")
	verbose           = flag.Int("verbose", 0, "Logging verbosity level (forwarded to glog's -v).")
	memLimitMB        = flag.Int("mem-limit", 512, "Memory limit, in MB, for the engine's bounded caches.")
)

func main() {
	flag.Parse()
	if v := flag.Lookup("v"); v != nil {
		_ = v.Value.Set(fmt.Sprint(*verbose))
	}
	defer glog.Flush()

	if err := run(context.Background()); err != nil {
		glog.Errorf("casita: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if *input == "" {
		return fmt.Errorf("--input is required")
	}
	if *ranks < 1 {
		return fmt.Errorf("--ranks must be >= 1, got %d", *ranks)
	}

	cfg := engine.Config{
		Input:             *input,
		Output:            *output,
		CreateOTF:         *createOTF,
		PrintCriticalPath: *printCriticalPath,
		MergeActivities:   *mergeActivities,
		NoErrors:          *noErrors,
		Verbose:           *verbose,
		MemLimitMB:        *memLimitMB,
	}

	reader, err := tracedata.OpenReader(*format, *input)
	if err != nil {
		return err
	}

	comms := replay.NewLocalCommunicators(*ranks)
	engines := make([]*engine.Engine, *ranks)
	for i, comm := range comms {
		e := engine.New(cfg, comm)
		mpi.Register(e, mpi.Options{})
		omp.Register(e)
		offload.Register(e)
		engines[i] = e
	}

	if err := ingest(reader, engines); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	results := make([]*cpath.Result, len(engines))
	if err := replay.RunRanks(ctx, comms, func(ctx context.Context, c replay.Communicator) error {
		res, err := cpath.Run(ctx, engines[c.Rank()], cpath.Options{})
		if err != nil {
			return err
		}
		results[c.Rank()] = res
		return nil
	}); err != nil {
		return fmt.Errorf("critical path: %w", err)
	}

	if *printCriticalPath && len(results) > 0 && results[0] != nil {
		fmt.Printf("critical path length: %d\n", results[0].Length)
	}

	if *output != "" {
		if err := writeOutput(engines, cfg); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	}
	return nil
}

// ingest feeds the trace into every rank's engine. A single-rank run reads
// the trace directly; a multi-rank run requires the registered reader to
// additionally implement tracedata.RankReader so each rank ingests only the
// event streams it owns -- the same demultiplexing the original traced
// program's own MPI ranks performed on capture.
func ingest(reader tracedata.Reader, engines []*engine.Engine) error {
	if len(engines) == 1 {
		return reader.Read(callbacksFor(engines[0]))
	}
	rr, ok := reader.(tracedata.RankReader)
	if !ok {
		return fmt.Errorf("registered reader for format %q does not support multi-rank replay (%d ranks requested)", *format, len(engines))
	}
	for rank, e := range engines {
		if err := rr.ReadRank(rank, callbacksFor(e)); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
	}
	return nil
}

func callbacksFor(e *engine.Engine) tracedata.Callbacks {
	return tracedata.Callbacks{
		Definition: e.OnDefinition,
		Event:      e.OnEvent,
	}
}

func writeOutput(engines []*engine.Engine, cfg engine.Config) error {
	w, err := tracedata.OpenWriter(*format, *output, tracedata.WriterOptions{
		CreateOTF:       cfg.CreateOTF,
		MergeActivities: cfg.MergeActivities,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			glog.Errorf("casita: closing writer: %v", cerr)
		}
	}()

	for _, e := range engines {
		for _, ae := range e.Export() {
			if err := w.Write(ae); err != nil {
				return err
			}
		}
	}
	return nil
}
