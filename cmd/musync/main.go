package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/chmdznr/music-dir-sync/internal/db"
	"github.com/chmdznr/music-dir-sync/internal/sync"
	"github.com/chmdznr/music-dir-sync/internal/target"
	"github.com/chmdznr/music-dir-sync/pkg/models"
	"github.com/chmdznr/music-dir-sync/pkg/utils"
	"github.com/chmdznr/music-dir-sync/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

const usageText = `musync [options] <from_dir> <to_dir>

Options must come before the directories. A source directory named
history or version must be written as ./history or ./version.`

func newApp(stdout, stderr io.Writer) *cli.App {
	cli.VersionFlag = &cli.BoolFlag{
		Name:    "version",
		Aliases: []string{"v"},
		Usage:   "print the version",
	}

	return &cli.App{
		Name:                 "musync",
		Usage:                "Copy new artist and album directories from one music library to another",
		UsageText:            usageText,
		Version:              version.Version,
		EnableBashCompletion: true,
		Writer:               stdout,
		ErrWriter:            stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "execute",
				Usage: "Perform copies; without it only the decisions are printed",
			},
			&cli.BoolFlag{
				Name:  "no-check",
				Usage: "Skip hash verification of copied and existing directories",
			},
			&cli.IntFlag{
				Name:  "depth",
				Usage: "Directory levels compared below the source root (artist, album, ...)",
				Value: 2,
			},
			&cli.StringFlag{
				Name:  "hash",
				Usage: "Verification hash: sha256 or blake2b",
				Value: sync.HashSHA256,
			},
			&cli.BoolFlag{
				Name:  "full-hash",
				Usage: "Hash whole files instead of their first 64 KiB",
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Show a progress bar on stderr while copying",
			},
			&cli.BoolFlag{
				Name:  "interactive",
				Usage: "Ask before copying each directory",
			},
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite file to record the run in",
				EnvVars: []string{"MUSYNC_DB"},
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Usage:   "MinIO endpoint for s3:// destinations",
				EnvVars: []string{"MINIO_ENDPOINT"},
			},
			&cli.StringFlag{
				Name:    "access-key",
				Usage:   "MinIO access key",
				EnvVars: []string{"MINIO_ACCESS_KEY"},
			},
			&cli.StringFlag{
				Name:    "secret-key",
				Usage:   "MinIO secret key",
				EnvVars: []string{"MINIO_SECRET_KEY"},
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "MinIO region",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "Connect to MinIO over plain HTTP",
			},
		},
		Action: startSync,
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					if err := noArgs(c); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Version:    %s\n", version.Version)
					fmt.Fprintf(c.App.Writer, "Git commit: %s\n", version.GitCommit)
					fmt.Fprintf(c.App.Writer, "Built:      %s\n", version.BuildTime)
					return nil
				},
			},
			{
				Name:  "history",
				Usage: "Show recorded runs",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db",
						Usage:   "SQLite file runs were recorded in",
						EnvVars: []string{"MUSYNC_DB"},
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
					&cli.BoolFlag{
						Name:  "failures",
						Usage: "List the failed checks of every run",
					},
				},
				Action: showHistory,
			},
		},
	}
}

// startSync runs the copy policy for <from_dir> and <to_dir>.
//
// Status lines go to stdout, one per decision, copy and failed check. When
// --db is given the run and its events are stored for the history command.
func startSync(c *cli.Context) error {
	for _, arg := range c.Args().Slice() {
		if len(arg) > 1 && strings.HasPrefix(arg, "-") {
			return fmt.Errorf("options must come before <from_dir> and <to_dir>: move %s before the directories", arg)
		}
	}
	if c.NArg() != 2 {
		return fmt.Errorf("expected <from_dir> and <to_dir>, got %d arguments", c.NArg())
	}
	fromDir := c.Args().Get(0)
	toDir := c.Args().Get(1)

	dest, err := target.New(toDir, target.Options{
		Progress:  c.Bool("progress"),
		Endpoint:  c.String("endpoint"),
		AccessKey: c.String("access-key"),
		SecretKey: c.String("secret-key"),
		Region:    c.String("region"),
		Insecure:  c.Bool("insecure"),
	})
	if err != nil {
		return err
	}

	syncerConfig := sync.SyncerConfig{
		Execute:       c.Bool("execute"),
		Check:         !c.Bool("no-check"),
		Depth:         c.Int("depth"),
		HashAlgorithm: c.String("hash"),
		HashLimit:     sync.DefaultHashLimit,
	}
	if c.Bool("full-hash") {
		syncerConfig.HashLimit = 0
	}

	syncer, err := sync.NewSyncer(fromDir, dest, &syncerConfig, log.New(c.App.Writer, "", 0))
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}
	if c.Bool("interactive") {
		syncer.SetConfirmer(newKeyConfirmer(c.App.ErrWriter))
	}

	var store *db.DB
	var run *models.Run
	if path := c.String("db"); path != "" {
		store, err = db.New(path)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()

		run = &models.Run{
			SourcePath:  syncer.Source(),
			Destination: dest.Path(""),
			Execute:     syncerConfig.Execute,
			Check:       syncerConfig.Check,
		}
		if err := store.CreateRun(run); err != nil {
			return err
		}
	}

	start := time.Now()
	report, runErr := syncer.Run(c.Context)
	if store != nil {
		if err := store.SaveReport(run, report); err != nil {
			log.Printf("failed to record run %s: %v", run.ID, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(c.App.ErrWriter, report.Stats, time.Since(start))
	return nil
}

func printSummary(w io.Writer, stats models.Stats, elapsed time.Duration) {
	bold := color.New(color.Bold)
	bold.Fprintf(w, "Finished in %s:\n", utils.FormatDuration(elapsed))
	fmt.Fprintf(w, "- Copy units: %d (%d files, %s)\n", stats.CopyUnits, stats.CopiedFiles, utils.FormatSize(stats.CopiedSize))
	fmt.Fprintf(w, "- Skipped: %d\n", stats.SkippedUnits)
	if stats.DeclinedUnits > 0 {
		fmt.Fprintf(w, "- Declined: %d\n", stats.DeclinedUnits)
	}
	if stats.CheckedFiles > 0 {
		line := color.New(color.FgGreen)
		if stats.FailedChecks > 0 {
			line = color.New(color.FgRed)
		}
		line.Fprintf(w, "- Checked: %d files, %d failed (%d missing)\n", stats.CheckedFiles, stats.FailedChecks, stats.MissingFiles)
	}
}

// showHistory lists the most recent runs recorded with --db.
// noArgs rejects positional arguments to a subcommand, which usually mean a
// source directory was named after it.
func noArgs(c *cli.Context) error {
	if c.NArg() == 0 {
		return nil
	}
	name := c.Command.Name
	return fmt.Errorf("%s takes no arguments; write ./%s to sync a directory named %s", name, name, name)
}

func showHistory(c *cli.Context) error {
	if err := noArgs(c); err != nil {
		return err
	}
	if c.String("db") == "" {
		return fmt.Errorf("history requires --db or MUSYNC_DB")
	}
	store, err := db.New(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(c.Int("limit"))
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.App.Writer, "No runs recorded")
		return nil
	}

	w := c.App.Writer
	for _, run := range runs {
		stats, err := store.GetStats(run.ID)
		if err != nil {
			return err
		}

		mode := "dry-run"
		if run.Execute {
			mode = "execute"
		}
		color.New(color.Bold).Fprintf(w, "%s  %s (%s)\n", run.ID, humanize.Time(run.StartedAt), mode)
		fmt.Fprintf(w, "  %s -> %s\n", run.SourcePath, run.Destination)
		fmt.Fprintf(w, "  copied %d (%d files, %s), skipped %d, checked %d, failed %d\n",
			stats.CopyUnits, stats.CopiedFiles, utils.FormatSize(stats.CopiedSize),
			stats.SkippedUnits, stats.CheckedFiles, stats.FailedChecks)

		if !c.Bool("failures") {
			continue
		}
		failures, err := store.GetFailures(run.ID)
		if err != nil {
			return err
		}
		for _, f := range failures {
			if f.Message != "" {
				fmt.Fprintf(w, "  check failed: from_path=%s to_path=%s error=%s\n", f.SourcePath, f.TargetPath, f.Message)
			} else {
				fmt.Fprintf(w, "  check failed: from_path=%s to_path=%s\n", f.SourcePath, f.TargetPath)
			}
		}
	}
	return nil
}
