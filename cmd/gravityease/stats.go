package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/gravityease/internal/config"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/spf13/cobra"
)

var (
	statsUser string
	statsDays int
)

var statsCmd = &cobra.Command{
	Use:   "stats [flags] [DATE]",
	Short: "Show recorded therapy sessions",
	Long: `Show the therapy records and daily total for DATE (YYYY-MM-DD, default today).
Bolt storage is locked while the station runs; use the display API instead.`,
	Example: `  gravityease stats
  gravityease -c config.yaml stats 2026-03-14
  gravityease stats --days 7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "", "User ID (defaults to therapy.user_id)")
	statsCmd.Flags().IntVar(&statsDays, "days", 0, "Also list daily totals for the last N recorded days")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	date := time.Now().Format(storage.DateFormat)
	if len(args) == 1 {
		if _, err := time.Parse(storage.DateFormat, args[0]); err != nil {
			return fmt.Errorf("invalid date %q: expected YYYY-MM-DD", args[0])
		}
		date = args[0]
	}

	user := statsUser
	if user == "" {
		user = cfg.Therapy.UserID
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sessions := store.Sessions()

	records, err := sessions.ListSessions(ctx, user, date)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	agg, err := sessions.GetDailyAggregate(ctx, user, date)
	if errors.Is(err, storage.ErrNotFound) {
		agg = &storage.DailyAggregate{Date: date, UserID: user}
	} else if err != nil {
		return fmt.Errorf("failed to get daily total: %w", err)
	}

	printDay(agg, records)

	if statsDays > 0 {
		days, err := sessions.ListDailyAggregates(ctx, user, statsDays)
		if err != nil {
			return fmt.Errorf("failed to list daily totals: %w", err)
		}
		printHistory(days)
	}

	return nil
}

// printDay prints one day's records and total with colors
func printDay(agg *storage.DailyAggregate, records []storage.SessionRecord) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Printf("THERAPY RECORDS %s (%s)\n", agg.Date, agg.UserID)
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	if len(records) == 0 {
		yellow.Println("No sessions recorded")
	}
	for _, rec := range records {
		fmt.Printf("%s  %6.1f°  %s\n", rec.SessionTime, rec.Angle, formatSeconds(rec.DurationSeconds))
	}

	fmt.Println()
	cyan.Print("Total:      ")
	green.Println(formatSeconds(agg.TotalDurationSeconds))
	cyan.Print("Sessions:   ")
	fmt.Println(agg.SessionCount)
	cyan.Print("Avg angle:  ")
	if agg.SessionCount > 0 {
		fmt.Printf("%.2f°\n", agg.AverageAngle)
	} else {
		fmt.Println("-")
	}
	fmt.Println()
}

// printHistory prints daily totals, newest first
func printHistory(days []storage.DailyAggregate) {
	cyan := color.New(color.FgCyan, color.Bold)

	cyan.Println("DAILY TOTALS")
	for _, d := range days {
		fmt.Printf("%s  %-10s  %3d sessions  %6.2f°\n", d.Date, formatSeconds(d.TotalDurationSeconds), d.SessionCount, d.AverageAngle)
	}
	fmt.Println()
}

func formatSeconds(secs int64) string {
	return fmt.Sprintf("%dm %02ds", secs/60, secs%60)
}
