package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/hyperifyio/chatsave/internal/api"
	"github.com/hyperifyio/chatsave/internal/app"
	"github.com/hyperifyio/chatsave/internal/capture"
	"github.com/hyperifyio/chatsave/internal/fetch"
	"github.com/hyperifyio/chatsave/internal/scrape"
	"github.com/hyperifyio/chatsave/internal/sink"
)

// outputOptions select where a rendered conversation goes.
type outputOptions struct {
	out    string
	outDir string
	gist   bool
}

func (o *outputOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.out, "out", "o", "", "Write to this file (.md or .pdf) instead of stdout")
	cmd.Flags().StringVar(&o.outDir, "out-dir", "", "Write to a file named after the conversation in this directory")
	cmd.Flags().BoolVar(&o.gist, "gist", false, "Upload as a private GitHub gist (needs GITHUB_TOKEN)")
}

func (o *outputOptions) sinkFor(cmd *cobra.Command, a *app.App, title, id string) sink.Sink {
	switch {
	case o.gist:
		return a.GistSink()
	case o.out != "":
		return app.FileSinkFor(o.out)
	case o.outDir != "":
		return app.FileSinkFor(app.DeriveOutputPath(o.outDir, title, id, ".md"))
	default:
		return sink.WriterSink{W: cmd.OutOrStdout()}
	}
}

func reportLocation(cmd *cobra.Command, res sink.Result) {
	if res.Location != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), res.Location)
	}
}

// readInput reads a file, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func newConvertCmd(opts *rootOptions) *cobra.Command {
	var output outputOptions
	cmd := &cobra.Command{
		Use:   "convert [payload-file|url|-]",
		Short: "Convert a raw conversation payload to Markdown",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			src := ""
			if len(args) == 1 {
				src = args[0]
			}
			var conv app.Conversion
			if isURL(src) {
				conv, err = a.ConvertURL(cmd.Context(), src, a.Config().EscapeCode)
			} else {
				var raw []byte
				if raw, err = readInput(cmd, src); err != nil {
					return err
				}
				conv, err = a.Convert(raw, a.Config().EscapeCode)
			}
			if err != nil {
				return err
			}
			sourceURL := ""
			if isURL(src) {
				sourceURL = src
			}
			s := output.sinkFor(cmd, a, conv.Transcript.Title(), conv.Transcript.ConversationID())
			res, err := a.PublishConversion(cmd.Context(), conv, sourceURL, s)
			if err != nil {
				return err
			}
			reportLocation(cmd, res)
			return nil
		},
	}
	output.register(cmd)
	return cmd
}

func newScrapeCmd(opts *rootOptions) *cobra.Command {
	var (
		output   outputOptions
		attempts int
		delay    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "scrape <page.html|url>",
		Short: "Scrape a rendered chat page, waiting for turns to appear",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, func(c *app.Config) {
				if cmd.Flags().Changed("attempts") { c.ScrapeAttempts = attempts }
				if cmd.Flags().Changed("delay") { c.ScrapeDelay = delay }
			})
			if err != nil {
				return err
			}
			defer a.Close()

			var src scrape.Source = scrape.FileSource{Path: args[0]}
			sourceURL := ""
			if isURL(args[0]) {
				src = scrape.URLSource{Client: a.Fetcher(), URL: args[0]}
				sourceURL = args[0]
			}
			conv, err := a.Scrape(cmd.Context(), src, a.Config().EscapeCode)
			if err != nil {
				return err
			}
			s := output.sinkFor(cmd, a, conv.Transcript.Title(), conv.Transcript.ConversationID())
			res, err := a.PublishConversion(cmd.Context(), conv, sourceURL, s)
			if err != nil {
				return err
			}
			reportLocation(cmd, res)
			return nil
		},
	}
	output.register(cmd)
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Snapshot attempts before giving up (default from config)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Delay between attempts (default from config)")
	return cmd
}

func newCaptureCmd(opts *rootOptions) *cobra.Command {
	var (
		pageURL  string
		fetchURL string
	)
	cmd := &cobra.Command{
		Use:   "capture [payload-file|-]",
		Short: "Save a captured GetPrompt response to the store",
		Long: "Save a captured GetPrompt response to the store. With --fetch the response is\n" +
			"requested through the network interceptor instead of being read from a file.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if fetchURL != "" {
				return captureViaInterceptor(cmd, a, fetchURL, pageURL)
			}
			src := ""
			if len(args) == 1 {
				src = args[0]
			}
			raw, err := readInput(cmd, src)
			if err != nil {
				return err
			}
			rec, err := a.HandleCapture(cmd.Context(), raw, pageURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", rec.ID, rec.Turns, rec.Title)
			return nil
		},
	}
	cmd.Flags().StringVar(&pageURL, "url", "", "Page URL the payload belongs to, e.g. https://aistudio.google.com/app/prompts/<id>")
	cmd.Flags().StringVar(&fetchURL, "fetch", "", "Request this GetPrompt URL through the network interceptor")
	return cmd
}

// captureViaInterceptor installs the process-wide interceptor, performs the
// request over the default transport and removes the interceptor again.
func captureViaInterceptor(cmd *cobra.Command, a *app.App, fetchURL, pageURL string) error {
	saved := make(chan string, 1)
	handler := a.CaptureHandler(pageURL)
	if _, fresh := capture.Install(func(ctx context.Context, c capture.Capture) {
		handler(ctx, c)
		select {
		case saved <- c.ID:
		default:
		}
	}, &log.Logger); fresh {
		defer capture.Uninstall()
	}
	cfg := a.Config()
	client := &fetch.Client{
		HTTPClient:        &http.Client{Timeout: cfg.FetchTimeout},
		UserAgent:         cfg.UserAgent,
		MaxAttempts:       cfg.FetchMaxAttempts,
		PerRequestTimeout: cfg.FetchTimeout,
		Log:               &log.Logger,
	}
	if _, _, err := client.Get(cmd.Context(), fetchURL); err != nil {
		return err
	}
	select {
	case id := <-saved:
		log.Debug().Str("capture", id).Msg("capture handled")
	default:
		return fmt.Errorf("response from %s was not captured", fetchURL)
	}
	n, err := a.Store().Count(cmd.Context())
	if err == nil {
		fmt.Fprintf(cmd.OutOrStdout(), "saved conversations: %d\n", n)
	}
	return err
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		output  outputOptions
		pageURL string
		id      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the last captured conversation for a page, or a saved one by id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			var res sink.Result
			if id != "" {
				rec, err := a.Store().Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("conversation %s: %w", id, err)
				}
				res, err = a.Publish(cmd.Context(), rec, output.sinkFor(cmd, a, rec.Title, rec.ID))
				if err != nil {
					return err
				}
			} else {
				convID, _ := capture.ConversationIDFromURL(pageURL)
				res, err = a.Export(cmd.Context(), pageURL, output.sinkFor(cmd, a, "", convID))
				if err != nil {
					return err
				}
			}
			reportLocation(cmd, res)
			return nil
		},
	}
	output.register(cmd)
	cmd.Flags().StringVar(&pageURL, "url", "", "Page URL naming the conversation")
	cmd.Flags().StringVar(&id, "id", "", "Export a saved conversation instead of the last captured payload")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			recs, err := a.Store().List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				summaries := make([]api.Summary, 0, len(recs))
				for _, r := range recs {
					summaries = append(summaries, api.Summary{ID: r.ID, Title: r.Title, SavedAt: r.SavedAt, URL: r.URL, Turns: r.Turns})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(summaries)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSAVED\tTURNS\tTITLE")
			for _, r := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.SavedAt.Local().Format(time.RFC3339), r.Turns, r.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Print the Markdown of a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, err := a.Store().Get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("conversation %s: %w", args[0], err)
			}
			_, err = a.Publish(cmd.Context(), rec, sink.WriterSink{W: cmd.OutOrStdout()})
			return err
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete saved conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range args {
				if err := a.Store().Delete(cmd.Context(), id); err != nil {
					return fmt.Errorf("conversation %s: %w", id, err)
				}
				log.Info().Str("id", id).Msg("deleted conversation")
			}
			return nil
		},
	}
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts, func(c *app.Config) {
				if cmd.Flags().Changed("listen") { c.Listen = listen }
			})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return api.NewServer(a, a.Config().Listen, &log.Logger).Start(ctx)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", app.DefaultConfig().Listen, "Address to listen on")
	return cmd
}
