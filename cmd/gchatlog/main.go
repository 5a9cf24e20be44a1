package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gchatlog/internal/app"
)

func main() {
	var (
		cfgPath  string
		failures int
	)
	flag.StringVar(&cfgPath, "config", "./gchatlog.yaml", "path to config (json or yaml)")
	flag.IntVar(&failures, "failures", 0, "print the newest N journaled delivery failures and exit")
	flag.Parse()

	if failures > 0 {
		if err := app.PrintFailures(cfgPath, failures, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "fatal:", err)
			os.Exit(1)
		}
		return
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigs:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.StdinDone():
		reason = app.StopInputClosed
	case <-a.Done():
		reason = app.StopFatalError
	}

	// Queued chat messages are flushed during Stop.
	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()
	_ = a.Stop(ctx, reason)

	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
