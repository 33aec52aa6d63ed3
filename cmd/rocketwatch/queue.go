package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rocketwatch/internal/config"
	"rocketwatch/internal/event"
	"rocketwatch/internal/storage/postgres"
)

func openPostgres(cmd *cobra.Command) (*postgres.Store, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	if cfg.PGDSN == "" {
		return nil, nil, fmt.Errorf("pg-dsn is required")
	}
	store, err := postgres.NewStore(cmd.Context(), cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	return store, logger, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	store, logger, err := openPostgres(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	logger.Info("schema up to date")
	return nil
}

func runQueue(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	store, logger, err := openPostgres(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	defer logger.Sync()

	ctx := cmd.Context()
	counts, err := store.CountByState(ctx)
	if err != nil {
		return err
	}
	pending, err := store.PendingEvents(ctx, limit)
	if err != nil {
		return err
	}

	printQueue(os.Stdout, counts, pending)
	return nil
}

func printQueue(w io.Writer, counts map[event.State]int64, pending []*event.Event) {
	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, string(state))
	}
	sort.Strings(states)

	summary := tablewriter.NewWriter(w)
	summary.SetHeader([]string{"STATE", "EVENTS"})
	for _, state := range states {
		summary.Append([]string{state, strconv.FormatInt(counts[event.State(state)], 10)})
	}
	summary.Render()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"SCORE", "EVENT", "UNIQUE ID", "ATTEMPTS", "SEEN"})
	table.SetAutoWrapText(false)
	for _, e := range pending {
		table.Append([]string{
			strconv.FormatUint(e.Score, 10),
			e.Name,
			e.UniqueID,
			strconv.Itoa(e.Attempts),
			e.TimeSeen.Format(time.RFC3339),
		})
	}
	table.Render()
}
