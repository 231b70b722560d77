// run-retention executes the whole deletion pipeline synchronously, one
// stage after another, against the configured shop database. Useful for
// one-off maintenance runs and for verifying a migration before switching
// the scheduled pipeline on.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/run-retention
//	go run ./cmd/run-retention -reset   # clear triggers + settings (uninstall)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/orders_retention/cleanup"
	"bitbucket.org/mmdatafocus/orders_retention/config"
	"bitbucket.org/mmdatafocus/orders_retention/models"
	"github.com/sirupsen/logrus"
)

func main() {
	reset := flag.Bool("reset", false, "clear all pending triggers and retention settings, then exit")
	dryRun := flag.Bool("dry-run", false, "only report how many orders the current settings would remove")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()
	logger := logrus.New()

	if *reset {
		if err := models.ResetRetentionState(ctx, db); err != nil {
			fmt.Fprintf(os.Stderr, "reset retention state: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("retention state cleared (triggers + settings)")
		return
	}

	settings := models.NewSettingStore(db)
	store := models.NewOrderStore(db)

	count, unit, err := settings.ThresholdConfig(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read threshold config: %v\n", err)
		os.Exit(1)
	}
	now := time.Now().In(settings.Location(ctx))
	threshold, err := cleanup.ThresholdDate(count, unit, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compute threshold date: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("threshold: orders created before %s\n", threshold.Format(time.RFC3339))

	if *dryRun {
		eligible, err := store.CountEligible(ctx, threshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "count eligible orders: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("dry run: %d orders would be removed\n", eligible)
		return
	}

	for _, stage := range cleanup.Chain() {
		affected, err := stage.Action(ctx, store, threshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stage %s failed: %v\n", stage.ID, err)
			os.Exit(1)
		}
		logger.WithFields(logrus.Fields{
			"stage":    string(stage.ID),
			"affected": affected,
		}).Info("stage completed")
		fmt.Printf("%-28s %d rows\n", stage.ID, affected)
	}
	fmt.Println("retention pipeline completed")
}
