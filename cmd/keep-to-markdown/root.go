package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sleroq/keep-to-markdown/internal/app/exporter"
	"github.com/sleroq/keep-to-markdown/internal/config"
	"github.com/sleroq/keep-to-markdown/internal/infra/keepapi"
	"github.com/sleroq/keep-to-markdown/internal/infra/keeptakeout"
	"github.com/sleroq/keep-to-markdown/internal/infra/mediafetch"
)

var (
	summaryStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
)

func newRootCmd(stdout io.Writer, stderr io.Writer) *cobra.Command {
	v := config.New()
	var configFile string
	var dotenv string

	cmd := &cobra.Command{
		Use:   "keep-to-markdown",
		Short: "Export labeled Google Keep notes to Markdown files",
		Long: `keep-to-markdown exports every note carrying the migration label into a notes
directory as Markdown, downloads its attachments into a media directory, and
marks each exported note with the success label.

Both output directories are emptied at the start of every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(dotenv); err != nil {
				return err
			}
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}
			logger := newLogger(stderr, cfg.Verbose)
			if cfg.ConfigFile != "" {
				logger.Debug("loaded config", "path", cfg.ConfigFile)
			}

			stats, err := runExport(cmd.Context(), cfg, logger)
			if err != nil {
				if stats.Failed > 0 {
					fmt.Fprintln(stderr, failedStyle.Render(fmt.Sprintf("%d notes failed", stats.Failed)))
				}
				return err
			}
			fmt.Fprintln(stdout, summaryStyle.Render(fmt.Sprintf("exported %d notes, copied %d files", stats.Notes, stats.Files)))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "Path to a YAML config file")
	flags.StringVar(&dotenv, "env-file", ".env", "Path to a .env file with GOOGLE_KEEP_USERNAME and GOOGLE_KEEP_PASSWORD")
	flags.String("store", config.StoreTakeout, "Note source: takeout or api")
	flags.String("takeout-dir", "", "Path to the Takeout Keep directory")
	flags.String("api-url", "", "Base URL of the Keep bridge API")
	flags.String("notes-dir", "./notes/", "Directory for exported notes")
	flags.String("media-dir", "./media/", "Directory for exported attachments")
	flags.String("migrate-label", config.DefaultMigrateLabel, "Label selecting the notes to export")
	flags.String("success-label", config.DefaultSuccessLabel, "Label added to exported notes")
	flags.Float64("rate-limit", 0, "Maximum remote requests per second (0 disables)")
	flags.Int("rate-burst", 1, "Request burst allowed by the rate limiter")
	flags.Duration("timeout", 0, "HTTP timeout per request (0 disables)")
	flags.Bool("keep-going", false, "Skip failing notes instead of stopping")
	flags.Bool("remove-migrate-label", false, "Drop the migration label from exported notes")
	flags.Bool("frontmatter", false, "Prepend YAML frontmatter to each note")
	flags.Bool("no-progress", false, "Hide the progress bar")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	bindFlags(v, cmd)

	return cmd
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	for _, name := range []string{
		"store", "takeout-dir", "api-url", "notes-dir", "media-dir",
		"migrate-label", "success-label", "rate-limit", "rate-burst", "timeout",
		"keep-going", "remove-migrate-label", "frontmatter", "no-progress", "verbose",
	} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runExport(ctx context.Context, cfg config.Config, logger *slog.Logger) (exporter.Stats, error) {
	store, err := openStore(cfg)
	if err != nil {
		return exporter.Stats{}, err
	}
	fetcher := mediafetch.New(
		mediafetch.WithTimeout(cfg.Timeout),
		mediafetch.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)

	exp := exporter.Exporter{
		Store:              store,
		Fetcher:            fetcher,
		Logger:             logger,
		NotesDir:           cfg.NotesDir,
		MediaDir:           cfg.MediaDir,
		MigrateLabel:       cfg.MigrateLabel,
		SuccessLabel:       cfg.SuccessLabel,
		Username:           cfg.Username,
		Password:           cfg.Password,
		Frontmatter:        cfg.Frontmatter,
		KeepGoing:          cfg.KeepGoing,
		RemoveMigrateLabel: cfg.RemoveMigrateLabel,
		ShowProgress:       !cfg.NoProgress,
	}
	return exp.Run(ctx)
}

func openStore(cfg config.Config) (exporter.NoteStore, error) {
	switch cfg.Store {
	case config.StoreAPI:
		client, err := keepapi.New(cfg.APIURL,
			keepapi.WithTimeout(cfg.Timeout),
			keepapi.WithRateLimit(cfg.RateLimit, cfg.RateBurst),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		store, err := keeptakeout.Open(cfg.TakeoutDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}
