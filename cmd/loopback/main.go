package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/gen2brain/loopback"
)

const envPrefix = "LOOPBACK_"

type options struct {
	configPath string
	envFile    string
	backend    string
	capture    string
	playback   string
	runs       int
	out        string
	list       bool
	caps       bool
	inspect    string
	trace      bool
	realtime   bool

	rate           int
	recordBuffer   int
	playbackBuffer int
	seconds        int
}

func main() {
	var o options

	flag.StringVar(&o.configPath, "config", "", "YAML config file")
	flag.StringVar(&o.envFile, "env", ".env", "Environment file with "+envPrefix+"* overrides")
	flag.StringVar(&o.backend, "backend", "alsa", "Audio backend (alsa, miniaudio, mem)")
	flag.StringVar(&o.capture, "capture", "", "Capture device (hw:C,D for alsa, name substring for miniaudio)")
	flag.StringVar(&o.playback, "playback", "", "Playback device (hw:C,D for alsa, name substring for miniaudio)")
	flag.IntVar(&o.runs, "runs", 1, "Number of tests to run")
	flag.StringVar(&o.out, "out", "", "Write each capture to <out>-<n>.wav")
	flag.BoolVar(&o.list, "list", false, "List audio devices and exit")
	flag.BoolVar(&o.caps, "caps", false, "Print what the alsa capture and playback devices accept and exit")
	flag.StringVar(&o.inspect, "inspect", "", "Describe a captured WAV file and exit")
	flag.BoolVar(&o.trace, "trace", false, "Print test session spans to stdout")
	flag.BoolVar(&o.realtime, "realtime", true, "Request real-time scheduling for the audio workers")
	flag.IntVar(&o.rate, "rate", 0, "Sample rate in Hz (overrides config)")
	flag.IntVar(&o.recordBuffer, "record-buffer", -1, "Record buffer in bytes, 0 for the device minimum (overrides config)")
	flag.IntVar(&o.playbackBuffer, "playback-buffer", -1, "Playback buffer in bytes, 0 for the device minimum (overrides config)")
	flag.IntVar(&o.seconds, "seconds", 0, "Length of the capture window in seconds (overrides config)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Measures round-trip audio latency by playing back what is captured, with a test tone injected.")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
	}

	flag.Parse()

	if err := run(o); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(o options) error {
	if o.inspect != "" {
		return inspect(o.inspect)
	}

	if o.list {
		return listDevices(o.backend)
	}

	if o.caps {
		return printCaps(o)
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)

	backend, closeBackend, err := openBackend(o, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engineOpts := []loopback.Option{
		loopback.WithLogger(logger),
		loopback.WithRealtimePriority(o.realtime),
	}

	if o.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Printf("[main] tracer shutdown: %v", err)
			}
		}()

		engineOpts = append(engineOpts, loopback.WithTracerProvider(tp))
	}

	events := loopback.NewChanNotifier(4)
	events.SetLogger(logger)
	engineOpts = append(engineOpts, loopback.WithNotifier(events))

	engine, err := loopback.New(cfg, backend, engineOpts...)
	if err != nil {
		return err
	}

	fmt.Printf("Backend: %s\n", o.backend)
	fmt.Printf("Configuration: %d Hz, %d s window, %d byte ring, tone %.0f Hz x %d samples after %d\n",
		cfg.SampleRate, cfg.TestSeconds, cfg.RingCapacity, cfg.ToneFrequency, cfg.ToneSamples, cfg.TonePreRoll)

	if err := engine.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer func() {
			if err := engine.Finish(); err != nil {
				logger.Printf("[main] %v", err)
			}
		}()

		for i := 1; i <= o.runs; i++ {
			if err := runOnce(gctx, engine, events, i, o.out); err != nil {
				return err
			}
		}

		return nil
	})

	g.Go(engine.Wait)

	err = g.Wait()
	fmt.Printf("Totals: %s\n", engine.Stats())

	if errors.Is(err, context.Canceled) {
		fmt.Println("Interrupted.")

		return nil
	}

	return err
}

// runOnce runs one test and waits for its RECORDING_COMPLETE event.
func runOnce(ctx context.Context, engine *loopback.Engine, events *loopback.ChanNotifier, n int, out string) error {
	fmt.Printf("Test %d: running... Press Ctrl+C to stop early.\n", n)

	if err := engine.RunTest(ctx); err != nil {
		return err
	}

	for done := false; !done; {
		select {
		case ev := <-events.C():
			done = ev.Kind == loopback.RecordingComplete
		case <-ctx.Done():
			endCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = engine.EndTest(endCtx)
			cancel()

			return ctx.Err()
		}
	}

	res, ok := engine.LastResult()
	if !ok {
		return errors.New("no test result")
	}

	fmt.Printf("Test %d: session %s, %d of %d samples in %s\n",
		n, res.ID, len(res.Samples), res.Capacity, res.Ended.Sub(res.Started).Round(time.Millisecond))
	fmt.Printf("Test %d: output delay %s\n", n, res.OutputDelay)
	fmt.Printf("Test %d: %s\n", n, res.Stats)

	if out == "" {
		return nil
	}

	path := fmt.Sprintf("%s-%d.wav", out, n)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}

	if err := res.WriteWAV(f); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Test %d: wrote %s\n", n, path)

	return nil
}

// loadConfig layers defaults, the YAML file, the environment and explicit flags, in that order.
func loadConfig(o options) (loopback.Config, error) {
	if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return loopback.Config{}, fmt.Errorf("failed to load %s: %w", o.envFile, err)
	}

	cfg := loopback.DefaultConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = loopback.LoadConfig(o.configPath); err != nil {
			return cfg, err
		}
	}

	if err := cfg.ApplyEnv(envPrefix); err != nil {
		return cfg, err
	}

	if o.rate > 0 {
		cfg.SampleRate = o.rate
	}

	if o.recordBuffer >= 0 {
		cfg.RecordBufferBytes = o.recordBuffer
	}

	if o.playbackBuffer >= 0 {
		cfg.PlaybackBufferBytes = o.playbackBuffer
	}

	if o.seconds > 0 {
		cfg.TestSeconds = o.seconds
	}

	return cfg, cfg.Validate()
}
