package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/mastrvec/internal/config"
	"github.com/kailas-cloud/mastrvec/internal/version"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "mastrvec:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "mastrvec",
		Usage:   "Load Marktstammdatenregister XML exports into a vector store",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment (local, dev, docker, prod); selects config/<env>.yaml and the log format",
				Value:   config.GetEnv(),
				EnvVars: []string{"ENV"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Explicit config file; overrides --env lookup",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Ingest XML files into their collections",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "mode",
						Usage: "reset drops collections first; incremental skips unchanged files",
					},
					&cli.StringSliceFlag{
						Name:  "collection",
						Usage: "Only ingest the named collection (repeatable)",
					},
					&cli.StringFlag{
						Name:  "data-dir",
						Usage: "Directory with the XML export; overrides pipeline.data_dir",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Similarity search over an ingested collection",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "collection",
						Usage:    "Collection to search",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Free-text query",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of hits",
						Value: 10,
					},
					&cli.StringSliceFlag{
						Name:  "where",
						Usage: "Filter clause: key=value, key>=n, key>n, key<=n, key<n (repeatable)",
					},
					&cli.Float64Flag{
						Name:  "max-distance",
						Usage: "Drop hits farther away than this distance (0 disables)",
					},
				},
			},
			{
				Name:   "drop",
				Usage:  "Drop collections and forget their ingested files",
				Action: dropCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "collection",
						Usage: "Collection to drop (repeatable); all configured collections when omitted",
					},
				},
			},
		},
	}
}
