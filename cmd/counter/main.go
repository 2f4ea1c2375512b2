// Command counter has a number of goroutines increment a shared counter, each
// exactly once, and prints the total.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/newgrp/lockbox"
)

const envPrefix = "COUNTER_"

var (
	workersFlag = &cli.IntFlag{
		Name:    "workers",
		Usage:   "Number of goroutines incrementing the counter",
		Value:   10,
		EnvVars: []string{envPrefix + "WORKERS"},
	}
	timeoutFlag = &cli.DurationFlag{
		Name:    "timeout",
		Usage:   "How long each worker may wait for the counter lock",
		Value:   5 * time.Second,
		EnvVars: []string{envPrefix + "TIMEOUT"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level (trace, debug, info, warn, error)",
		Value:   "info",
		EnvVars: []string{envPrefix + "LOG_LEVEL"},
	}
)

// Increments counter once from each of n goroutines and returns the final
// count. Each worker gives up if it cannot get the lock within timeout.
func countConcurrently(ctx context.Context, log logrus.FieldLogger, n int, timeout time.Duration) (int, error) {
	counter := lockbox.NewMutex(0)

	eg, ctx := errgroup.WithContext(ctx)
	for i := range n {
		eg.Go(func() error {
			waitCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			g, err := lockbox.LockContext(waitCtx, counter)
			if err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			defer g.Unlock()

			*g.Ptr()++
			log.WithFields(logrus.Fields{"worker": i, "count": g.Get()}).Debug("Incremented counter")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return 0, err
	}

	g := counter.Lock()
	defer g.Unlock()
	return g.Get(), nil
}

// Writes value into a fresh cell through one guard and reads it back through
// another.
func roundTrip(value int) int {
	data := lockbox.NewMutex(0)

	data.With(func(g *lockbox.Guard[int]) {
		g.Set(value)
	})

	g := data.Lock()
	defer g.Unlock()
	return g.Get()
}

func run(c *cli.Context) error {
	level, err := logrus.ParseLevel(c.String(logLevelFlag.Name))
	if err != nil {
		return err
	}
	logger := logrus.New()
	logger.SetLevel(level)
	log := logger.WithField("run", uuid.NewString())

	workers := c.Int(workersFlag.Name)
	if workers < 0 {
		return fmt.Errorf("--%s must not be negative", workersFlag.Name)
	}

	count, err := countConcurrently(c.Context, log, workers, c.Duration(timeoutFlag.Name))
	if err != nil {
		return err
	}
	log.WithField("workers", workers).Info("Workers finished")
	fmt.Fprintf(c.App.Writer, "Counter: %d\n", count)

	fmt.Fprintf(c.App.Writer, "Data: %d\n", roundTrip(42))
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:   "counter",
		Usage:  "Increment a lock-protected counter from many goroutines",
		Flags:  []cli.Flag{workersFlag, timeoutFlag, logLevelFlag},
		Action: run,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("counter failed")
	}
}
