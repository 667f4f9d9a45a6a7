package main

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/chatsave/internal/app"
	"github.com/hyperifyio/chatsave/internal/extract"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("run failed")
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to the process exit status: 2 when no conversation
// content was found, 1 otherwise.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, extract.ErrNoRecognizedSchema), errors.Is(err, app.ErrNoContent), errors.Is(err, app.ErrNoPayload):
		return 2
	default:
		return 1
	}
}

// rootOptions collects the persistent flags shared by all subcommands.
type rootOptions struct {
	configPath   string
	envFiles     []string
	storeDir     string
	storeBackend string
	strictPerms  bool
	storeMaxAge  time.Duration
	escapeCode   bool
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	defaults := app.DefaultConfig()

	root := &cobra.Command{
		Use:           "chatsave",
		Short:         "Save AI Studio conversations as Markdown",
		Version:       app.BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate(app.VersionString() + "\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", os.Getenv("CHATSAVE_CONFIG"), "Path to YAML or JSON config file")
	flags.StringSliceVar(&opts.envFiles, "env", []string{".env"}, "Dotenv files to load; later files override earlier ones")
	flags.StringVar(&opts.storeDir, "store.dir", defaults.StoreDir, "Directory holding saved conversations")
	flags.StringVar(&opts.storeBackend, "store.backend", defaults.StoreBackend, "Store backend: dir or bolt")
	flags.BoolVar(&opts.strictPerms, "store.strictPerms", false, "Restrict store permissions (0700 dirs, 0600 files)")
	flags.DurationVar(&opts.storeMaxAge, "store.maxAge", 0, "Purge saved conversations older than this on startup; 0 disables")
	flags.BoolVar(&opts.escapeCode, "escape-code", false, "Escape HTML entities inside fenced code blocks")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose logging")

	root.AddCommand(
		newConvertCmd(opts),
		newScrapeCmd(opts),
		newCaptureCmd(opts),
		newExportCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// setupLogging configures the global logger on w. Colour is used only when w
// is a terminal.
func setupLogging(w io.Writer, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: noColor})
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig resolves the configuration with precedence flags > env > file >
// defaults.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (app.Config, error) {
	if err := app.LoadEnvFiles(opts.envFiles...); err != nil {
		return app.Config{}, err
	}
	cfg := app.DefaultConfig()
	if strings.TrimSpace(opts.configPath) != "" {
		fc, err := app.LoadConfigFile(opts.configPath)
		if err != nil {
			return app.Config{}, err
		}
		app.ApplyFileConfig(&cfg, fc)
		cfg.ConfigPath = opts.configPath
	}
	app.ApplyEnvOverrides(&cfg)

	changed := cmd.Flags().Changed
	if changed("store.dir") { cfg.StoreDir = opts.storeDir }
	if changed("store.backend") { cfg.StoreBackend = opts.storeBackend }
	if changed("store.strictPerms") { cfg.StoreStrictPerms = opts.strictPerms }
	if changed("store.maxAge") { cfg.StoreMaxAge = opts.storeMaxAge }
	if changed("escape-code") { cfg.EscapeCode = opts.escapeCode }
	if changed("verbose") { cfg.Verbose = opts.verbose }
	return cfg, app.ValidateConfig(cfg)
}

// openApp loads configuration, sets up logging and opens the app. The caller
// closes the returned app.
func openApp(cmd *cobra.Command, opts *rootOptions, mutate func(*app.Config)) (*app.App, error) {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	if mutate != nil {
		mutate(&cfg)
	}
	setupLogging(cmd.ErrOrStderr(), cfg.Verbose)
	return app.New(cmd.Context(), cfg, &log.Logger)
}
