// Command qsim runs a JSON circuit on the qsim engine and prints the
// resulting amplitudes.
//
// Usage:
//
//	qsim [-device auto|cpu] [-all] [-densities] [-json] [-v] circuit.json
//
// Pass "-" to read the circuit from standard input.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/sugawarayuuta/sonnet"

	"github.com/gogpu/qsim"
	"github.com/gogpu/qsim/backend/cpu"
	_ "github.com/gogpu/qsim/gpu" // enable GPU evaluation
	"github.com/gogpu/qsim/internal/bits"
)

func main() {
	var (
		device    = flag.String("device", "auto", "evaluation device: auto or cpu")
		all       = flag.Bool("all", false, "show every intermediate state")
		densities = flag.Bool("densities", false, "show per-qubit reduced states")
		asJSON    = flag.Bool("json", false, "print the report as JSON")
		verbose   = flag.Bool("v", false, "debug logging to stderr")
		workers   = flag.Int("workers", 0, "software device goroutines (0 = GOMAXPROCS)")
	)
	flag.Parse()

	if *verbose {
		qsim.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: qsim [flags] circuit.json")
		flag.PrintDefaults()
		os.Exit(2)
	}

	err := run(flag.Arg(0), *device, *workers, *all, *densities, *asJSON, os.Stdout)
	qsim.CloseRegisteredDevice()
	if err != nil {
		fmt.Fprintf(os.Stderr, "qsim: %v\n", err)
		os.Exit(1)
	}
}

func readCircuit(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func run(path, device string, workers int, all, densities, asJSON bool, w io.Writer) error {
	data, err := readCircuit(path)
	if err != nil {
		return err
	}
	c, err := ParseCircuit(data)
	if err != nil {
		return err
	}

	opts := []qsim.EngineOption{qsim.WithWorkers(workers)}
	switch device {
	case "auto":
	case "cpu":
		d := cpu.New(cpu.Config{Workers: workers})
		defer d.Close()
		opts = append(opts, qsim.WithDevice(d))
	default:
		return fmt.Errorf("unknown device %q", device)
	}
	e, err := qsim.NewEngine(opts...)
	if err != nil {
		return err
	}
	defer e.Close()

	report, err := Simulate(context.Background(), e, c, densities)
	if err != nil {
		return err
	}
	if asJSON {
		out, err := sonnet.Marshal(report)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	}
	_, err = fmt.Fprintln(w, RenderText(report, all))
	return err
}

// Simulate builds every state of c and reads them back in one merged read.
func Simulate(ctx context.Context, e *qsim.Engine, c *Circuit, densities bool) (*Report, error) {
	states, err := c.Build(e)
	if err != nil {
		return nil, err
	}
	reads, err := e.MergedRead(states...)
	if err != nil {
		return nil, err
	}
	lazies := make([]qsim.Lazy[[]complex64], len(reads))
	for i, r := range reads {
		lazies[i] = r.Amplitudes()
	}

	before := e.Stats().Device.Readbacks
	amps, err := qsim.ComputeAll(ctx, lazies)
	if err != nil {
		return nil, err
	}

	final := states[len(states)-1]
	report := &Report{
		Device:  e.Device().Name(),
		Adapter: e.Device().Capabilities().DeviceName,
		Qubits:  final.QubitCount(),
		Steps:   make([]StepReport, len(amps)),
	}
	for i, a := range amps {
		label := "initial"
		if i > 0 {
			label = c.Ops[i-1].Label()
		}
		step := StepReport{Label: label, Amplitudes: make([][2]float32, len(a))}
		for k, v := range a {
			step.Amplitudes[k] = [2]float32{real(v), imag(v)}
		}
		report.Steps[i] = step
	}

	if densities && final.QubitCount() > 0 {
		lazy, err := final.QubitDensities(bits.SpanMask(final.QubitCount()))
		if err != nil {
			return nil, err
		}
		ds, err := lazy.Compute(ctx)
		if err != nil {
			return nil, err
		}
		for q, d := range ds {
			x, y, z := d.BlochVector()
			report.Densities = append(report.Densities, QubitReport{
				Qubit: q, Probability: d.Probability(), Bloch: [3]float64{x, y, z},
			})
		}
	}
	report.Readbacks = e.Stats().Device.Readbacks - before
	return report, nil
}
