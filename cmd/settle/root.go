// root.go - Root command, global flags and shared run state.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/brennhill/pagesettle/cmd/settle/config"
	"github.com/brennhill/pagesettle/cmd/settle/output"
	"github.com/brennhill/pagesettle/internal/activity"
	"github.com/brennhill/pagesettle/internal/cdp"
	"github.com/brennhill/pagesettle/internal/logging"
	"github.com/brennhill/pagesettle/internal/occlusion"
	"github.com/brennhill/pagesettle/internal/settle"
)

// session is the browser tab a command drives. *cdp.Session implements it.
type session interface {
	settle.Target
	Navigate(ctx context.Context, url string) error
	Activity() (activity.State, bool)
	Close()
}

type opener func(ctx context.Context, cfg cdp.BrowserConfig, log zerolog.Logger) (session, error)

func openChrome(ctx context.Context, cfg cdp.BrowserConfig, log zerolog.Logger) (session, error) {
	s, err := cdp.Launch(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	stdout io.Writer
	stderr io.Writer
	open   opener

	cfg    config.Config
	log    zerolog.Logger
	format output.Formatter
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "settle",
		Short: "Wait for web pages to finish loading",
		Long: `settle loads a page in Chrome and decides when it is ready for the next
step of an automated test: the document has loaded, no tracked requests are
in flight, no configured spinner is visible, and the DOM has stopped changing.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.loadConfig,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Help()
			return usageError{errors.New("missing command")}
		},
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "config file (merged over <config dir>/config.yaml and ./.settle.yaml)")
	pf.String("format", "human", "output format: human, json or csv")
	pf.Bool("debug", false, "log tracker, classifier and probe decisions to stderr")
	pf.Int("timeout", 15000, "overall timeout in ms")
	pf.Int("poll-interval", 100, "poll interval in ms")
	pf.Int("quiet-ms", 400, "mutation-free window in ms before the DOM counts as quiet")
	pf.String("spinner-css", "", "comma separated spinner selectors (none/off disables)")
	pf.Float64("min-paint-area", occlusion.DefaultMinPaintAreaPx, "smallest visible area in px that counts as painted")
	pf.String("remote-url", "", "DevTools websocket URL of a running browser")
	pf.String("chrome-bin", "", "Chrome executable for a local launch")
	pf.Bool("headless", true, "run a locally launched browser headless")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.AddCommand(newWaitCmd(a), newStatusCmd(a), newProbeCmd(a))
	return root
}

func (a *app) loadConfig(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("cannot determine working directory: %w", err)
	}
	explicit, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cwd, explicit, cmd.Flags())
	if err != nil {
		return usageError{fmt.Errorf("configuration: %w", err)}
	}
	a.cfg = cfg
	if cfg.Format == "json" {
		a.log = logging.NewJSON(a.stderr, cfg.Debug)
	} else {
		a.log = logging.New(a.stderr, cfg.Debug)
	}
	a.format = output.GetFormatter(cfg.Format)
	return nil
}

// urlArg requires exactly one URL argument.
func urlArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError{fmt.Errorf("expected exactly one URL, got %d arguments", len(args))}
	}
	return nil
}

// withSession opens a tab, loads url and runs fn. Navigation is bounded by
// the configured timeout.
func (a *app) withSession(ctx context.Context, url string, fn func(session) error) error {
	s, err := a.open(ctx, a.cfg.BrowserConfig(), a.log)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer s.Close()

	navCtx, cancel := context.WithTimeout(ctx, time.Duration(a.cfg.TimeoutMs)*time.Millisecond)
	defer cancel()
	if err := s.Navigate(navCtx, url); err != nil {
		return err
	}
	return fn(s)
}

func (a *app) emit(r *output.Result) error {
	if err := a.format.Format(a.stdout, r); err != nil {
		return fmt.Errorf("format output: %w", err)
	}
	return nil
}
