package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birdayz/patchbay"
	plog "github.com/birdayz/patchbay/pkg/log"
	"github.com/birdayz/patchbay/pmachine"
	"github.com/birdayz/patchbay/pmessage"
	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type config struct {
	bpm      float64
	duration time.Duration
	feedback bool
}

func main() {
	var cfg config
	flag.Float64Var(&cfg.bpm, "bpm", 120, "clock tempo in beats per minute")
	flag.DurationVar(&cfg.duration, "duration", 4*time.Second, "how long to play, 0 plays until interrupted")
	flag.BoolVar(&cfg.feedback, "feedback", false, "patch the thru output back into the arpeggiator")
	verbosity := flag.Int("v", 0, "log verbosity")
	flag.Parse()

	log := plog.NewLogr("patchdemo", *verbosity)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	if err := run(ctx, log, cfg); err != nil {
		log.Error(err, "Patch failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, log logr.Logger, cfg config) error {
	router := patchbay.New(
		patchbay.WithLogr(log.WithName("router")),
		patchbay.WithOnCycleDetected(func() { log.Info("Delivery on the feedback wire is muted") }),
	)
	loop := patchbay.NewLoop(patchbay.WithLoopLogr(log.WithName("loop")))

	clock := pmachine.NewClock(cfg.bpm)
	arp := pmachine.NewFunc(arpeggiator(60, 64, 67, 72, 76), pmachine.WithTypeName("ArpMachine"))
	thru := pmachine.NewThru(pmachine.ThruConfig{Detune: 12})
	split := pmachine.NewNoteSplit(pmachine.NoteSplitConfig{Threshold: 83, Active: true})
	high := pmachine.NewCollector()
	low := pmachine.NewCollector()
	monitor := pmachine.NewCollector()

	monitor.OnReceive(func(r pmachine.Received) {
		if r.Message.IsNote() {
			log.V(1).Info("Note", "message", r.Message.String(), "channel", r.Channel)
		}
	})

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return loop.Run(ctx)
	})

	var buildErr error
	err := loop.Do(ctx, func() {
		buildErr = multierr.Combine(
			router.Connect(clock, arp, 0, 0, router.NewLink()),
			router.Connect(arp, thru, 0, 0, router.NewLink()),
			router.Connect(thru, split, 0, 0, router.NewLink()),
			router.Connect(split, high, pmachine.SplitHigh, 0, router.NewLink()),
			router.Connect(split, low, pmachine.SplitLow, 0, router.NewLink()),
		)
		if _, allErr := router.ConnectAll(split, monitor, 0, nil); allErr != nil {
			buildErr = multierr.Append(buildErr, allErr)
		}
		if cfg.feedback {
			buildErr = multierr.Append(buildErr, router.Connect(thru, arp, 0, 1, router.NewLink()))
		}
		if buildErr == nil {
			buildErr = clock.SetStatus(pmachine.ClockStarted)
		}
	})
	if err == nil {
		err = buildErr
	}
	if err != nil {
		loop.Close()
		_ = eg.Wait()
		return fmt.Errorf("failed to build patch: %w", err)
	}

	eg.Go(func() error {
		return clock.Run(ctx, loop.Submit)
	})

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	clock.Dispose()
	stats := router.Stats()
	log.Info("Stopped",
		"high", len(high.Received()),
		"low", len(low.Received()),
		"monitor", len(monitor.Received()),
		"delivered", stats.Delivered,
		"suppressed", stats.Suppressed,
		"failed", stats.Failed,
	)
	return nil
}

// arpeggiator plays keys in order, one sixteenth note per step, on output 0.
func arpeggiator(keys ...uint8) pmachine.ReceiveFunc {
	const pulsesPerStep = pmachine.PulsesPerQuarter / 4

	var (
		pulses  int
		step    int
		playing = -1
	)
	release := func(m *pmachine.Func) {
		if playing >= 0 {
			m.Emit(pmessage.NoteOff(0, keys[playing]), 0)
			playing = -1
		}
	}

	return func(m *pmachine.Func, msg pmessage.Message, _ int) (pmachine.MessageResult, error) {
		switch msg.Kind {
		case pmessage.KindClock:
			if pulses%pulsesPerStep == 0 {
				release(m)
				playing = step % len(keys)
				step++
				m.Emit(pmessage.NoteOn(0, keys[playing], 100), 0)
			}
			pulses++
			return pmachine.Processed, nil
		case pmessage.KindStart:
			pulses, step = 0, 0
			return pmachine.Processed, nil
		case pmessage.KindStop, pmessage.KindAllNotesOff:
			release(m)
			return pmachine.Processed, nil
		}
		return pmachine.Ignored, nil
	}
}
