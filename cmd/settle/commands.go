// commands.go - wait, status and probe subcommands.
package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/brennhill/pagesettle/cmd/settle/output"
	"github.com/brennhill/pagesettle/internal/activity"
	"github.com/brennhill/pagesettle/internal/readiness"
	"github.com/brennhill/pagesettle/internal/settle"
)

func newWaitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <url>",
		Short: "Load a page and wait until it settles",
		Args:  urlArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, args[0], func(s session) error {
				res, err := settle.NewWaiter(s, a.cfg.Wait(), a.log).Wait(ctx)
				if err != nil {
					return err
				}
				r := &output.Result{
					Success: res.Settled(),
					Command: "wait",
					URL:     args[0],
					Data:    waitData(res),
				}
				if !res.Settled() {
					r.Error = errNotSettled.Error()
					a.log.Warn().Dur("timeout", a.cfg.Wait().Timeout).Msg("page was not ready before timeout")
				}
				if err := a.emit(r); err != nil {
					return err
				}
				if !res.Settled() {
					return errNotSettled
				}
				return nil
			})
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var install bool
	cmd := &cobra.Command{
		Use:   "status <url>",
		Short: "Load a page and print one readiness snapshot",
		Args:  urlArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return a.withSession(ctx, args[0], func(s session) error {
				if install {
					s.Install(ctx)
				}
				report := s.Classify(ctx, a.cfg.Wait().Quiet)
				data := reportData(report)
				if st, ok := s.Activity(); ok {
					trackerData(data, st)
				}
				return a.emit(&output.Result{Success: true, Command: "status", URL: args[0], Data: data})
			})
		},
	}
	cmd.Flags().BoolVar(&install, "install", false, "install the activity monitor before the snapshot")
	return cmd
}

func newProbeCmd(a *app) *cobra.Command {
	var selectors []string
	cmd := &cobra.Command{
		Use:   "probe <url>",
		Short: "Load a page and report whether a spinner is visible",
		Args:  urlArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(selectors) == 0 {
				selectors = a.cfg.Wait().SpinnerSelectors
			}
			if len(selectors) == 0 {
				return usageError{errors.New("no selectors: pass --selector or set spinner_css")}
			}
			ctx := cmd.Context()
			return a.withSession(ctx, args[0], func(s session) error {
				busy := s.Probe(ctx, selectors)
				return a.emit(&output.Result{
					Success: true,
					Command: "probe",
					URL:     args[0],
					Data:    map[string]any{"busy": busy, "selectors": selectors},
				})
			})
		},
	}
	cmd.Flags().StringArrayVarP(&selectors, "selector", "s", nil, "CSS selector to probe, in priority order (repeatable)")
	return cmd
}

func waitData(res settle.Result) map[string]any {
	data := reportData(res.Last)
	data["outcome"] = string(res.Outcome)
	data["polls"] = res.Polls
	data["elapsed_ms"] = res.Elapsed.Milliseconds()
	return data
}

func reportData(r readiness.Report) map[string]any {
	return map[string]any{
		"idle":               r.Idle,
		"ready":              r.DocumentReady,
		"network_idle":       r.NetworkIdle,
		"dom_quiet":          r.DOMQuiet,
		"pending":            r.Pending,
		"third_party_active": r.ThirdPartyActive,
	}
}

func trackerData(data map[string]any, st activity.State) {
	data["fetch_intercepted"] = st.FetchIntercepted
	data["request_intercepted"] = st.RequestIntercepted
	data["observer_active"] = st.ObserverActive
}
