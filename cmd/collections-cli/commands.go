package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/vrsandeep/collections-go/internal/config"
	"github.com/vrsandeep/collections-go/internal/core"
	"github.com/vrsandeep/collections-go/internal/db"
	"github.com/vrsandeep/collections-go/internal/models"
	"github.com/vrsandeep/collections-go/internal/store"
	"github.com/vrsandeep/collections-go/migrations"
)

const seedChunk = 5000

// openStore loads the configuration and opens a migrated database. Seeding
// writes directly, so the storage throttle is switched off.
func openStore() (*config.Config, *store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	database, err := core.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	st := store.NewWithDriver(database, db.NormalizeDriver(cfg.Database.Driver))
	st.Throttle().Set(0)
	return cfg, st, func() { database.Close() }, nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	cfg, st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	driver := db.NormalizeDriver(cfg.Database.Driver)
	version, dirty, err := db.MigrationVersion(st.DB(), driver, migrations.FS)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Printf("Schema version %d on %s (dirty: %t)\n", version, driver, dirty)
	return nil
}

func seedAction(ctx context.Context, cmd *cli.Command) error {
	_, st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	name := cmd.String("collection")
	count := int(cmd.Int("count"))
	if count < 0 {
		return fmt.Errorf("count must not be negative")
	}

	c, err := findOrCreateCollection(ctx, st, name)
	if err != nil {
		return err
	}

	for start := 0; start < count; start += seedChunk {
		end := min(start+seedChunk, count)
		names := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			names = append(names, "Company "+strconv.Itoa(i+1))
		}
		ids, err := st.CreateCompanies(ctx, names)
		if err != nil {
			return fmt.Errorf("failed to create companies: %w", err)
		}
		if _, err := st.UpsertMembers(ctx, c.ID, ids); err != nil {
			return fmt.Errorf("failed to add companies to %q: %w", name, err)
		}
		log.Printf("Seeded %d/%d companies into %q", end, count, name)
	}

	if empty := cmd.String("empty"); empty != "" {
		if _, err := findOrCreateCollection(ctx, st, empty); err != nil {
			return err
		}
	}
	fmt.Printf("Collection %q (%s) seeded with %d companies\n", c.Name, c.ID, count)
	return nil
}

func findOrCreateCollection(ctx context.Context, st *store.Store, name string) (*models.Collection, error) {
	c, err := st.GetCollectionByName(ctx, name)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up collection %q: %w", name, err)
	}
	c, err = st.CreateCollection(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return c, nil
}

func statsAction(ctx context.Context, cmd *cli.Command) error {
	_, st, closeFn, err := openStore()
	if err != nil {
		return err
	}
	defer closeFn()

	collections, err := st.ListCollections(ctx)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Collection", "ID", "Members")
	for _, c := range collections {
		n, err := st.CountMembers(ctx, c.ID)
		if err != nil {
			return err
		}
		table.Append(c.Name, c.ID, strconv.Itoa(n))
	}
	table.Render()

	jobs, err := st.ListJobs(ctx, int(cmd.Int("jobs")))
	if err != nil {
		return err
	}
	fmt.Println()
	jobTable := tablewriter.NewWriter(os.Stdout)
	jobTable.Header("Job ID", "State", "Strategy", "Progress", "Created At")
	for _, j := range jobs {
		jobTable.Append(
			j.ID,
			string(j.State),
			string(j.Strategy),
			fmt.Sprintf("%d/%d", j.Done, j.Total),
			j.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	jobTable.Render()

	stats, err := st.ThroughputStats(ctx)
	if err != nil {
		return err
	}
	fmt.Println()
	statsTable := tablewriter.NewWriter(os.Stdout)
	statsTable.Header("Operation", "Runs", "Records", "Avg rows/s")
	for _, s := range stats {
		statsTable.Append(
			string(s.Operation),
			strconv.Itoa(s.Runs),
			strconv.FormatInt(s.TotalRecords, 10),
			fmt.Sprintf("%.0f", s.AvgThroughput),
		)
	}
	statsTable.Render()
	return nil
}
