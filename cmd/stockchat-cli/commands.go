package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"stockchat/internal/app"
	"stockchat/internal/config"
	"stockchat/internal/util"
	"stockchat/pkg/stockchat"
)

var (
	askTimeout   time.Duration
	askJSON      bool
	historyLimit int
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question and print the result",
	Example: `  stockchat-cli ask "How did Apple do in 2024?"
  stockchat-cli ask --server http://localhost:8080 "compare NVDA and AMD this year"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the server's current state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remote()
		if err != nil {
			return err
		}
		st, err := c.State(cmd.Context())
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), st)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent queries",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var zoomCmd = &cobra.Command{
	Use:   "zoom <from> <to>",
	Short: "Zoom the server's chart to a date range (YYYY-MM-DD)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remote()
		if err != nil {
			return err
		}
		st, err := c.Zoom(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), st)
	},
}

var modeCmd = &cobra.Command{
	Use:       "mode [zoom|difference|view]",
	Short:     "Set the chart mode, or cycle to the next one",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"zoom", "difference", "view"},
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remote()
		if err != nil {
			return err
		}
		mode := ""
		if len(args) == 1 {
			mode = args[0]
		}
		st, err := c.SetMode(cmd.Context(), mode)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "mode: %s\n", st.Selection.Mode)
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the server's chart zoom",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := remote()
		if err != nil {
			return err
		}
		st, err := c.Reset(cmd.Context())
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), st)
	},
}

func init() {
	askCmd.Flags().DurationVarP(&askTimeout, "timeout", "t", 90*time.Second, "give up after this long")
	for _, c := range []*cobra.Command{askCmd, stateCmd, zoomCmd, resetCmd} {
		c.Flags().BoolVar(&askJSON, "json", false, "print the raw state as JSON")
	}
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of queries to list")
}

func remote() (*stockchat.Client, error) {
	if serverURL == "" {
		return nil, errors.New("this command needs --server or STOCKCHAT_SERVER")
	}
	return stockchat.NewClient(serverURL), nil
}

func output(w io.Writer, st *stockchat.State) error {
	if askJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	render(w, st)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()
	question := strings.Join(args, " ")

	var st *stockchat.State
	if serverURL != "" {
		var err error
		st, err = stockchat.NewClient(serverURL).Ask(ctx, question, 250*time.Millisecond)
		if err != nil {
			return err
		}
	} else {
		a, err := buildLocal(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		snap, askErr := a.Orchestrator.Ask(ctx, question)
		if snap == nil {
			return askErr
		}
		// The local snapshot and the API state share one JSON shape.
		if st, err = convert(snap); err != nil {
			return err
		}
	}
	if err := output(cmd.OutOrStdout(), st); err != nil {
		return err
	}
	if st.Status == "error" {
		return errors.New(st.Error)
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	if serverURL != "" {
		recs, err := stockchat.NewClient(serverURL).History(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		renderHistory(w, recs)
		return nil
	}

	a, err := buildLocal(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()
	if a.QueryLog == nil {
		return errors.New("no query log configured (storage.sqlite_path)")
	}
	recs, err := a.QueryLog.Recent(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	out := make([]stockchat.QueryRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, stockchat.QueryRecord{
			QueryID: r.QueryID, Text: r.Text, Description: r.Description,
			Actions: r.Actions, Failed: r.Failed, Status: r.Status, SubmittedAt: r.SubmittedAt,
		})
	}
	renderHistory(w, out)
	return nil
}

// buildLocal assembles the core in-process. Logs go to stderr at warn so
// they do not interleave with the answer.
func buildLocal(ctx context.Context) (*app.App, error) {
	path := configFile
	if path == "" {
		if p := app.DefaultConfigPath(os.Getenv); fileExists(p) {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	level := util.ParseLevel(cfg.Logging.Level)
	if level < slog.LevelWarn {
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	util.SetDefault(logger)
	return app.Build(ctx, cfg, logger)
}

func convert(v any) (*stockchat.State, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var st stockchat.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
