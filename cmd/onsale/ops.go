// Onsale - Ticket On-Sale Ingestion and Notification
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/onsale

package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tomtom215/onsale/internal/auth"
	"github.com/tomtom215/onsale/internal/config"
	"github.com/tomtom215/onsale/internal/database"
	"github.com/tomtom215/onsale/internal/models"
	"github.com/tomtom215/onsale/internal/reminder"
)

const timeLayout = "2006-01-02 15:04 MST"

func regionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regions",
		Short: "List registered regions and whether they are polled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			all, err := a.registry.Select(nil)
			if err != nil {
				return err
			}
			polled := make(map[string]bool)
			selected, err := a.registry.Select(a.cfg.Poll.Regions)
			if err != nil {
				return err
			}
			for _, r := range selected {
				polled[r.Name] = true
			}
			printRegions(cmd.OutOrStdout(), all, polled)
			return nil
		},
	}
}

func printRegions(w io.Writer, regions []config.RegionConfig, polled map[string]bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "REGION\tCENTER\tRADIUS\tVARIANTS\tDELIVERY\tPOLLED") //nolint:errcheck // terminal output
	for _, r := range regions {
		delivery := "general"
		if r.European {
			delivery = color.New(color.FgBlue).Sprint("european")
		}
		state := color.New(color.FgYellow).Sprint("no")
		if polled[r.Name] {
			state = color.New(color.FgGreen).Sprint("yes")
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d %s\t%d\t%s\t%s\n", //nolint:errcheck // terminal output
			r.Name, r.LatLong(), r.Radius, r.Unit, len(r.RotationSet()), delivery, state)
	}
	_ = tw.Flush() //nolint:errcheck // terminal output
}

func eventsCmd() *cobra.Command {
	var (
		status   string
		limit    int
		upcoming bool
		notable  bool
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "List events by delivery status, or the next sales with --upcoming",
		Long: `List events in one delivery status. suppressed and exhausted together are
the dead-letter view: events that will not be delivered without operator
action.

--upcoming lists the next sales to open, soonest first, with their presales
and any scheduled reminder. --notable restricts it to notable artists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status = strings.ToLower(status)
			if !models.IsValidDeliveryStatus(status) {
				return fmt.Errorf("invalid --status %q: want one of %s", status, statusList())
			}
			if limit < 1 || limit > 1000 {
				return errors.New("--limit must be between 1 and 1000")
			}
			if notable && !upcoming {
				return errors.New("--notable only applies with --upcoming")
			}

			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			if upcoming {
				q := database.UpcomingQuery{Limit: min(limit, maxUpcoming)}
				if notable {
					q.NotableOnly = &notable
				}
				events, err := a.store.ListUpcomingEvents(cmd.Context(), q)
				if err != nil {
					return fmt.Errorf("failed to list upcoming events: %w", err)
				}
				printUpcoming(cmd.OutOrStdout(), events)
				return nil
			}

			events, err := a.store.ListEventsByStatus(cmd.Context(), models.DeliveryStatus(status), limit)
			if err != nil {
				return fmt.Errorf("failed to list events: %w", err)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", string(models.DeliveryPending), "delivery status: "+statusList())
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of events")
	cmd.Flags().BoolVar(&upcoming, "upcoming", false, "list the next sales to open instead")
	cmd.Flags().BoolVar(&notable, "notable", false, "with --upcoming, only notable artists")
	return cmd
}

// maxUpcoming caps the upcoming view.
const maxUpcoming = 50

func printUpcoming(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "no upcoming sales") //nolint:errcheck // terminal output
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tREGION\tSALE START\tPRESALES\tREMINDER\tNAME") //nolint:errcheck // terminal output
	for i := range events {
		e := &events[i]
		presales := make([]string, len(e.Presales))
		for j, p := range e.Presales {
			presales[j] = p.Name + " " + p.Start.UTC().Format(timeLayout)
		}
		reminderAt := ""
		if e.ReminderAt != nil {
			reminderAt = e.ReminderAt.UTC().Format(timeLayout)
		}
		name := e.Name
		if artist := e.ArtistName(); artist != "" {
			name = artist + " - " + e.Name
		}
		if e.IsNotable() {
			name = color.New(color.FgHiMagenta).Sprint("*") + name
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck // terminal output
			e.ID, e.Region, e.SaleStart.UTC().Format(timeLayout), strings.Join(presales, "; "), reminderAt, name)
	}
	_ = tw.Flush() //nolint:errcheck // terminal output
}

func remindCmd() *cobra.Command {
	var (
		lead time.Duration
		drop bool
	)

	cmd := &cobra.Command{
		Use:   "remind <event-id>",
		Short: "Schedule a sale reminder for an event (or drop it, with --clear)",
		Long: `Schedule a reminder --lead before the event's earliest upcoming presale,
or before the general sale when it has none. The reminder worker posts it to
the channel the event is routed to and follows up REMINDER_FOLLOW_UP before
the general sale.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if lead <= 0 {
				lead = a.cfg.Reminders.Lead
			}
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			eventID := args[0]
			if drop {
				err = a.store.SetReminder(cmd.Context(), eventID, nil)
			} else {
				var at time.Time
				at, err = reminder.Schedule(cmd.Context(), a.store, eventID, time.Now(), lead)
				if err == nil {
					writeLine(cmd.OutOrStdout(), fmt.Sprintf("reminder for %s at %s", eventID, at.Format(timeLayout)))
				}
			}
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("event %s not found", eventID)
			}
			if err != nil {
				return fmt.Errorf("failed to update reminder: %w", err)
			}
			if drop {
				writeLine(cmd.OutOrStdout(), fmt.Sprintf("reminder for %s cleared", eventID))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&lead, "lead", 0, "how long before the sale to remind (default REMINDER_LEAD)")
	cmd.Flags().BoolVar(&drop, "clear", false, "drop the scheduled reminder")
	return cmd
}

func statusList() string {
	names := make([]string, len(models.ValidDeliveryStatuses))
	for i, s := range models.ValidDeliveryStatuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

func printEvents(w io.Writer, events []models.Event) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(w, "no events") //nolint:errcheck // terminal output
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tREGION\tSALE START\tATTEMPTS\tSTATUS\tNAME\tLAST ERROR") //nolint:errcheck // terminal output
	for i := range events {
		e := &events[i]
		lastErr := ""
		if e.Delivery.LastError != nil {
			lastErr = *e.Delivery.LastError
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n", //nolint:errcheck // terminal output
			e.ID, e.Region, e.SaleStart.UTC().Format(timeLayout), e.Delivery.AttemptCount,
			statusColor(e.Delivery.Status), e.Name, lastErr)
	}
	_ = tw.Flush() //nolint:errcheck // terminal output
}

func statusColor(s models.DeliveryStatus) string {
	switch s {
	case models.DeliverySent:
		return color.New(color.FgGreen).Sprint(s)
	case models.DeliveryRetrying:
		return color.New(color.FgYellow).Sprint(s)
	case models.DeliverySuppressed, models.DeliveryExhausted:
		return color.New(color.FgRed).Sprint(s)
	default:
		return string(s)
	}
}

func artistsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artists",
		Short: "Inspect and curate artists",
	}
	cmd.AddCommand(artistsListCmd(), artistsNotableCmd())
	return cmd
}

func artistsListCmd() *cobra.Command {
	var notable bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known artists",
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

			artists, err := a.store.ListArtists(cmd.Context(), notable)
			if err != nil {
				return fmt.Errorf("failed to list artists: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "ID\tNOTABLE\tNAME") //nolint:errcheck // terminal output
			for _, ar := range artists {
				mark := ""
				if ar.Notable {
					mark = color.New(color.FgHiMagenta).Sprint("*")
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", ar.ID, mark, ar.Name) //nolint:errcheck // terminal output
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&notable, "notable", false, "only notable artists")
	return cmd
}

func artistsNotableCmd() *cobra.Command {
	var off bool

	cmd := &cobra.Command{
		Use:   "notable <artist-id>",
		Short: "Mark an artist notable (or not, with --off)",
		Long: `Notable artists are routed to the notable channels. The change applies
to events not yet delivered; sent messages are never re-posted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.openStore(cmd.Context()); err != nil {
				return err
			}
			defer a.close()

			artistID := args[0]
			err = a.store.SetArtistNotable(cmd.Context(), artistID, !off)
			if errors.Is(err, database.ErrNotFound) {
				return fmt.Errorf("artist %s not found", artistID)
			}
			if err != nil {
				return fmt.Errorf("failed to update artist: %w", err)
			}
			writeLine(cmd.OutOrStdout(), fmt.Sprintf("artist %s notable=%t", artistID, !off))
			return nil
		},
	}

	cmd.Flags().BoolVar(&off, "off", false, "clear the notable flag")
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a bearer token for the mutating ops API routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if err := a.cfg.RequireAPIAuth(); err != nil {
				return err
			}
			manager, err := auth.NewJWTManager(a.cfg.Server.JWTSecret, ttl)
			if err != nil {
				return err
			}
			token, err := manager.GenerateToken(args[0])
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			writeLine(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
