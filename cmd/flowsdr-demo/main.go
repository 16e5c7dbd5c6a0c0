// Command flowsdr-demo wires a small flowgraph end to end and runs it
// under a chosen scheduler, printing a summary once every block
// terminates. It exists to exercise Runtime/Flowgraph the way a real
// caller would, not as a library API surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	flowsdr "github.com/behrlich/flowsdr"
	"github.com/behrlich/flowsdr/internal/logging"
)

func main() {
	n := flag.Int("n", 64, "number of samples to push through the pipeline")
	period := flag.Uint64("tag-period", 16, "insert a clock tag every N samples")
	schedName := flag.String("scheduler", "smol", "scheduler to run under: smol, thread-per-block, flow")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	kind, err := parseScheduler(*schedName)
	if err != nil {
		logger.Error("invalid scheduler", "error", err)
		os.Exit(1)
	}

	values := make([]float32, *n)
	for i := range values {
		values[i] = float32(i)
	}

	fg := flowsdr.NewFlowgraph()
	src := &flowsdr.VectorSource[float32]{Values: values}
	fir := &flowsdr.Fir{Taps: []float32{1, 1, 1}}
	tagger := &flowsdr.PeriodicTagger[float32]{Period: *period, TagName: "clock"}
	sink := &flowsdr.VectorSink[float32]{}

	srcID := fg.AddBlock(src, "vector_source", "src", nil, streamPorts("out"), nil, nil)
	firID := fg.AddBlock(fir, "fir", "fir", streamPorts("in"), streamPorts("out"), nil, nil)
	tagID := fg.AddBlock(tagger, "periodic_tagger", "tagger", streamPorts("in"), streamPorts("out"), nil, nil)
	sinkID := fg.AddBlock(sink, "vector_sink", "sink", streamPorts("in"), nil, nil, nil)

	if src.Out, fir.In, err = flowsdr.ConnectCircular[float32](fg, srcID, "out", firID, "in", 0); err != nil {
		logger.Error("wiring failed", "error", err)
		os.Exit(1)
	}
	if fir.Out, tagger.In, err = flowsdr.ConnectCircular[float32](fg, firID, "out", tagID, "in", 0); err != nil {
		logger.Error("wiring failed", "error", err)
		os.Exit(1)
	}
	if tagger.Out, sink.In, err = flowsdr.ConnectCircular[float32](fg, tagID, "out", sinkID, "in", 0); err != nil {
		logger.Error("wiring failed", "error", err)
		os.Exit(1)
	}

	logger.Info("starting flowgraph", "samples", *n, "scheduler", *schedName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- flowsdr.NewRuntime().WithScheduler(kind).Run(ctx, fg)
	}()

	go dumpStacksOnSIGUSR1(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-runDone:
		if err != nil {
			logger.Error("flowgraph terminated with error", "error", err)
			os.Exit(1)
		}
	case <-sigCh:
		logger.Info("received shutdown signal, canceling flowgraph")
		cancel()
		<-runDone
	}

	out := sink.Values()
	fmt.Printf("produced %d samples, %d consumed by sink\n", *n, len(out))
	if len(out) > 0 {
		head := out
		if len(head) > 8 {
			head = head[:8]
		}
		fmt.Printf("first %d: %v\n", len(head), head)
	}
}

func streamPorts(names ...string) []flowsdr.PortSpec {
	specs := make([]flowsdr.PortSpec, len(names))
	for i, n := range names {
		specs[i] = flowsdr.PortSpec{Name: n}
	}
	return specs
}

func parseScheduler(s string) (flowsdr.SchedulerKind, error) {
	switch strings.ToLower(s) {
	case "smol", "":
		return flowsdr.SchedulerSmol, nil
	case "thread-per-block":
		return flowsdr.SchedulerThreadPerBlock, nil
	case "flow":
		return flowsdr.SchedulerFlow, nil
	default:
		return 0, fmt.Errorf("unknown scheduler %q", s)
	}
}

// dumpStacksOnSIGUSR1 dumps every goroutine's stack on SIGUSR1, useful for
// diagnosing a stuck flowgraph without killing the process.
func dumpStacksOnSIGUSR1(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1024*1024)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

		filename := fmt.Sprintf("flowsdr-stacks-%d.txt", time.Now().Unix())
		if f, err := os.Create(filename); err == nil {
			fmt.Fprintf(f, "Goroutine stack dump at %s\n\n", time.Now().Format(time.RFC3339))
			f.Write(buf[:n])
			fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
			pprof.Lookup("goroutine").WriteTo(f, 2)
			f.Close()
			logger.Info("stack trace written to file", "file", filename)
		}
	}
}
