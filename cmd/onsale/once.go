// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/onsale/internal/faults"
)

// errTickFailed makes the process exit non-zero after a failed --once run.
var errTickFailed = errors.New("one or more ticks failed")

// component is the Start/Stop lifecycle shared by pollers, the scheduler
// and the workers.
type component interface {
	Start(ctx context.Context) error
	Stop() error
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// runUntilSignal starts components and stops them, in reverse order, once
// ctx is canceled.
func runUntilSignal(ctx context.Context, components ...component) error {
	started := make([]component, 0, len(components))
	for _, c := range components {
		if err := c.Start(ctx); err != nil {
			stopAll(started)
			return err
		}
		started = append(started, c)
	}
	<-ctx.Done()
	stopAll(started)
	return nil
}

func stopAll(components []component) {
	for i := len(components) - 1; i >= 0; i-- {
		_ = components[i].Stop() //nolint:errcheck // only fails when not running
	}
}

// recording wraps the app escalator so --once runs can fail the exit status.
func (a *app) recording() *faults.RecordingEscalator {
	rec := &faults.RecordingEscalator{Next: a.escalator}
	a.escalator = rec
	return rec
}

func pollCmd() *cobra.Command {
	var (
		regions []string
		once    bool
	)

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Ingest new on-sales for the selected regions",
		Long: `Poll the catalog for each region. Without --once the pollers run on
their configured interval until interrupted. --region may be repeated and
defaults to POLL_REGIONS (every registered region when unset).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := loadApp()
			if err != nil {
				return err
			}
			rec := a.recording()
			if err := a.openStore(ctx); err != nil {
				return err
			}
			defer a.close()

			pollers, err := a.pollers(regions)
			if err != nil {
				return err
			}

			if !once {
				components := make([]component, len(pollers))
				for i, p := range pollers {
					components[i] = p
				}
				return runUntilSignal(ctx, components...)
			}

			// Regions are independent; tick them concurrently like the
			// supervised process does.
			type outcome struct {
				line string
				err  error
			}
			results := make([]outcome, len(pollers))
			var wg sync.WaitGroup
			for i, p := range pollers {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := p.Poll(ctx)
					if err != nil {
						results[i] = outcome{line: fmt.Sprintf("%-16s FAILED %v", p.Region(), err), err: err}
						return
					}
					results[i] = outcome{line: fmt.Sprintf("%-16s variant=%s pages=%d returned=%d inserted=%d updated=%d unchanged=%d malformed=%d",
						p.Region(), res.Variant, res.Pages, res.Returned, res.Inserted, res.Updated, res.Unchanged, res.Malformed)}
				}(i)
			}
			wg.Wait()

			failed := len(rec.Errors()) > 0
			out := cmd.OutOrStdout()
			for _, r := range results {
				writeLine(out, r.line)
				if r.err != nil {
					failed = true
				}
			}
			if failed {
				return errTickFailed
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&regions, "region", nil, "region id to poll (repeatable)")
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick per region and exit")
	return cmd
}

func dispatchCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Deliver pending events to their Discord channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := loadApp()
			if err != nil {
				return err
			}
			rec := a.recording()
			if err := a.openStore(ctx); err != nil {
				return err
			}
			defer a.close()

			scheduler, err := a.scheduler()
			if err != nil {
				return err
			}
			if !once {
				return runUntilSignal(ctx, scheduler)
			}

			failed := len(rec.Errors()) > 0
			out := cmd.OutOrStdout()
			for _, r := range scheduler.RunOnce(ctx) {
				if r.Err != nil {
					failed = true
					writeLine(out, fmt.Sprintf("%-18s FAILED %v", r.Pairing, r.Err))
					continue
				}
				if r.Errors > 0 {
					failed = true
				}
				writeLine(out, fmt.Sprintf("%-18s candidates=%d confirmed=%d retryable=%d terminal=%d skipped=%d deferred=%d errors=%d",
					r.Pairing, r.Candidates, r.Confirmed, r.Retryable, r.Terminal, r.Skipped, r.Deferred, r.Errors))
			}
			if failed || len(rec.Errors()) > 0 {
				return errTickFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single tick per pairing and exit")
	return cmd
}

func linkCheckCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "linkcheck",
		Short: "Look for artist signup links on undelivered events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.openStore(ctx); err != nil {
				return err
			}
			defer a.close()

			worker := a.linkWorker()
			if !once {
				return runUntilSignal(ctx, worker)
			}

			res := worker.RunOnce(ctx)
			writeLine(cmd.OutOrStdout(), fmt.Sprintf("checked=%d found=%d failed=%d", res.Checked, res.Found, res.Failed))
			if res.Failed > 0 {
				return errTickFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func remindersCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Send scheduled sale reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			a, err := loadApp()
			if err != nil {
				return err
			}
			rec := a.recording()
			if err := a.openStore(ctx); err != nil {
				return err
			}
			defer a.close()

			worker, err := a.reminderWorker()
			if err != nil {
				return err
			}
			if !once {
				return runUntilSignal(ctx, worker)
			}

			res := worker.RunOnce(ctx)
			writeLine(cmd.OutOrStdout(), fmt.Sprintf("due=%d sent=%d retried=%d deferred=%d dropped=%d",
				res.Due, res.Sent, res.Retried, res.Deferred, res.Dropped))
			if res.Retried > 0 || len(rec.Errors()) > 0 {
				return errTickFailed
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run a single pass and exit")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the event store schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			writeLine(cmd.OutOrStdout(), fmt.Sprintf("schema up to date (%s)", a.store.Engine()))
			return nil
		},
	}
}

func writeLine(w io.Writer, line string) {
	_, _ = fmt.Fprintln(w, line) //nolint:errcheck // terminal output
}
