package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"stockchat/internal/dashboard"
	"stockchat/pkg/stockchat"
)

// render prints a terminal summary of st: per-symbol performance over the
// visible window, then metrics, news and any failed actions.
func render(w io.Writer, st *stockchat.State) {
	if st.Status == "error" {
		fmt.Fprintf(w, "error: %s\n", st.Error)
		return
	}
	if st.Description != "" {
		fmt.Fprintln(w, st.Description)
		fmt.Fprintln(w)
	}

	if rows := st.Table.Rows; len(rows) > 0 {
		first, last := rows[0], rows[len(rows)-1]
		fmt.Fprintf(w, "%s (%s to %s, %d days)\n", st.Title, first.Date, last.Date, len(rows))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SYMBOL\tSTART\tEND\tCHANGE\t%")
		for _, sym := range st.Table.Symbols {
			start, end := firstValue(rows, sym, false), firstValue(rows, sym, true)
			if start == nil || end == nil {
				fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", sym)
				continue
			}
			pct := "-"
			if *start != 0 {
				pct = dashboard.FormatSignedPercent((*end - *start) / *start * 100)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", sym,
				dashboard.FormatNumber(*start), dashboard.FormatNumber(*end),
				dashboard.FormatSigned(*end-*start), pct)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(st.Metrics) > 0 {
		fmt.Fprintln(w, "Metrics")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, sym := range sortedKeys(st.Metrics) {
			m := st.Metrics[sym]
			for _, name := range sortedKeys(m) {
				fmt.Fprintf(tw, "  %s\t%s\t%v\n", sym, name, m[name])
			}
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(st.News) > 0 {
		fmt.Fprintln(w, "News")
		for _, n := range st.News {
			line := "  - " + n.Title
			if n.Publisher != "" {
				line += " (" + n.Publisher + ")"
			}
			fmt.Fprintln(w, line)
		}
		fmt.Fprintln(w)
	}

	for _, d := range st.Diagnostics {
		fmt.Fprintf(w, "! %s %s: %s\n", d.Action, strings.Join(d.Symbols, ","), d.Message)
	}
}

func renderHistory(w io.Writer, recs []stockchat.QueryRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBMITTED\tSTATUS\tACTIONS\tFAILED\tQUERY")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
			r.SubmittedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Actions, r.Failed, r.Text)
	}
	tw.Flush()
}

// firstValue returns the first present value of sym, scanning from the end
// when reverse is set.
func firstValue(rows []stockchat.Row, sym string, reverse bool) *float64 {
	for i := range rows {
		r := rows[i]
		if reverse {
			r = rows[len(rows)-1-i]
		}
		if v := r.Values[sym]; v != nil {
			return v
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
