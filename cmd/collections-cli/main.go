// Command collections-cli manages the collections database outside the
// server: applying migrations, seeding demo data and printing job stats.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetFlags(log.LstdFlags)

	app := &cli.Command{
		Name:  "collections-cli",
		Usage: "Maintenance commands for the collections service",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and print the schema version",
				Action: migrateAction,
			},
			{
				Name:  "seed",
				Usage: "Create a collection filled with generated companies",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "collection",
						Usage: "collection name, created if missing",
						Value: "My List",
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "number of companies to generate",
						Value: 10000,
					},
					&cli.StringFlag{
						Name:  "empty",
						Usage: "also create this empty collection as a bulk-add target",
						Value: "Liked Companies",
					},
				},
				Action: seedAction,
			},
			{
				Name:  "stats",
				Usage: "Show collection sizes, recent jobs and throughput",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "jobs",
						Usage: "number of recent jobs to show",
						Value: 10,
					},
				},
				Action: statsAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
