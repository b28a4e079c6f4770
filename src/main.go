package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/eiannone/keyboard"
	"github.com/xyproto/randomstring"

	"liftsim/src/config"
	"liftsim/src/sim"
	"liftsim/src/statuslog"
	"liftsim/src/utils"
)

const runIDLength = 6

func main() {
	envPath := flag.String("env", ".env", "optional .env file with LIFTSIM_* overrides")
	runID := flag.String("run", "", "run id tagging every log line, random if empty")
	sink := flag.String("log", "slog", "status sink: slog or zerolog")
	logPath := flag.String("logfile", "", "also write the log to this file")
	debug := flag.Bool("debug", false, "enable debug logging")
	keys := flag.Bool("keys", true, "read p/r/s/q from the keyboard")
	floors := flag.Int("floors", config.NumFloors, "number of floors")
	cars := flag.Int("cars", config.NumCars, "number of cars")
	capacity := flag.Int("capacity", config.CarCapacity, "seats per car")
	passengers := flag.Int("passengers", config.NumPassengers, "number of passengers")
	travel := flag.Duration("travel", config.TravelDuration, "time to move one floor")
	door := flag.Duration("door", config.DoorOpenDuration, "shortest door dwell after a pickup")
	seed := flag.Uint64("seed", 0, "passenger seed, time based if 0")
	flag.Parse()

	cfg, err := config.Load(*envPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	// Flags given on the command line win over the .env file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "floors":
			cfg.NumFloors = *floors
		case "cars":
			cfg.NumCars = *cars
		case "capacity":
			cfg.Capacity = *capacity
		case "passengers":
			cfg.NumPassengers = *passengers
		case "travel":
			cfg.TravelDuration = *travel
		case "door":
			cfg.DoorOpenDuration = *door
		case "seed":
			cfg.Seed = *seed
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if *runID == "" {
		*runID = randomstring.EnglishFrequencyString(runIDLength)
	}
	if err := run(cfg, *runID, *sink, *logPath, *debug, *keys); err != nil {
		slog.Error("Simulation failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, runID, sink, logPath string, debug, keys bool) error {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logFile, err := statuslog.InitLogger(runID, level, logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()

	var status statuslog.Logger
	switch sink {
	case "zerolog":
		status = statuslog.NewZerolog(os.Stdout, runID)
	case "slog":
		status = statuslog.NewSlog(nil)
	default:
		return fmt.Errorf("unknown status sink %q", sink)
	}

	s, err := sim.New(cfg, status)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	keysDone := make(chan struct{})
	if keys {
		go func() {
			defer close(keysDone)
			controlKeys(ctx, stop, s)
		}()
	} else {
		close(keysDone)
	}

	report, err := s.Run(ctx)
	stop()
	<-keysDone

	fmt.Print(report.Summary())
	return err
}

// controlKeys serves the pause control surface until ctx is done. The
// terminal is in raw mode meanwhile, so Ctrl-C arrives as a key.
func controlKeys(ctx context.Context, quit context.CancelFunc, s *sim.Simulation) {
	events, err := keyboard.GetKeys(10)
	if err != nil {
		slog.Warn("Keyboard control unavailable", "err", err)
		return
	}
	defer keyboard.Close()
	utils.PrintStatus(os.Stdout, "Keys: p pause | r resume | s status | q quit")

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Err != nil {
				slog.Warn("Keyboard read failed", "err", ev.Err)
				return
			}
			switch {
			case ev.Rune == 'p':
				s.Pause()
			case ev.Rune == 'r':
				s.Resume()
			case ev.Rune == 's':
				utils.PrintStatus(os.Stdout, utils.StatusLine(s.Snapshots(), s.PendingCalls(), s.Paused()))
			case ev.Rune == 'q' || ev.Key == keyboard.KeyCtrlC || ev.Key == keyboard.KeyEsc:
				slog.Info("Quit requested")
				quit()
				return
			}
		}
	}
}
