package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/datviz/datviz-app/internal/audit"
	"github.com/datviz/datviz-app/internal/messaging"
	"github.com/datviz/datviz-app/internal/postgres"
)

// auditReader is the part of audit.Store the command reads.
type auditReader interface {
	Recent(ctx context.Context, subject string, limit int) ([]audit.Event, error)
	CountRecent(ctx context.Context, userUUID string, window time.Duration) (int, error)
}

func newAuditCmd() *cobra.Command {
	var (
		dsn     string
		subject string
		limit   int
		user    string
		window  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect persisted domain events",
		Long: "Lists the newest events for a subject, or with --user counts a user's " +
			"events within --window. Reads PostgreSQL directly (env DATABASE_URL).",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), cliConfig.Timeout)
			defer cancel()

			db, err := postgres.Open(ctx, dsn)
			if err != nil {
				return err
			}
			defer db.Close()
			return runAudit(ctx, cmd.OutOrStdout(), audit.NewStore(db), subject, limit, user, window)
		},
	}
	cmd.Flags().StringVar(&dsn, "db", cliConfig.DatabaseURL, "PostgreSQL DSN (env DATABASE_URL)")
	cmd.Flags().StringVar(&subject, "subject", messaging.SubjectCreditsDeducted, "event subject to list")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to list")
	cmd.Flags().StringVar(&user, "user", "", "count events for this user uuid instead of listing")
	cmd.Flags().DurationVar(&window, "window", time.Hour, "counting window for --user")
	return cmd
}

func runAudit(ctx context.Context, out io.Writer, store auditReader, subject string, limit int, user string, window time.Duration) error {
	if user != "" {
		n, err := store.CountRecent(ctx, user, window)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d events in the last %s\n", user, n, window)
		return nil
	}
	if limit < 1 {
		return fmt.Errorf("--limit must be positive")
	}
	events, err := store.Recent(ctx, subject, limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintf(out, "no %s events\n", subject)
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-36s  %s\n", ev.CreatedAt.Format(time.DateTime), ev.UserUUID, ev.Payload)
	}
	return nil
}
