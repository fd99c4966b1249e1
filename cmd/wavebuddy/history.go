package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ayusman/wavebuddy/internal/config"
	"github.com/ayusman/wavebuddy/internal/store"
)

func newHistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Print logged exchanges, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "How many exchanges to print",
				Value:   20,
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print totals instead of the list",
			},
			&cli.DurationFlag{
				Name:  "prune",
				Usage: "Delete exchanges older than this before printing",
			},
		},
		Action: runHistory,
	}
}

func runHistory(_ context.Context, cmd *cli.Command) error {
	cfg := config.Load()
	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if age := cmd.Duration("prune"); age > 0 {
		n, err := st.Exchanges().DeleteBefore(time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("prune: %w", err)
		}
		fmt.Fprintf(os.Stderr, "pruned %d exchanges\n", n)
	}

	if cmd.Bool("stats") {
		stats, err := st.Exchanges().Stats()
		if err != nil {
			return err
		}
		printStats(stats)
		return nil
	}

	exchanges, err := st.Exchanges().List(int(cmd.Int("limit")))
	if err != nil {
		return err
	}
	printExchanges(exchanges)
	return nil
}

func printExchanges(exchanges []*store.Exchange) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tSOURCE\tPROMPT\tRESPONSE\tSPOKEN")
	for _, e := range exchanges {
		source := e.Source
		if e.Gesture != "" {
			source += ":" + e.Gesture
		}
		response := e.Response
		if e.Error != "" {
			response = "error: " + e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\n",
			e.StartedAt.Local().Format(time.DateTime), source,
			truncate(e.Prompt, 40), truncate(response, 60), e.Spoken)
	}
	w.Flush()
}

func printStats(s *store.Stats) {
	fmt.Printf("total: %d  spoken: %d  failed: %d\n", s.Total, s.Spoken, s.Failed)
	for _, group := range []struct {
		name   string
		counts map[string]int
	}{{"source", s.BySource}, {"gesture", s.ByGesture}} {
		keys := make([]string, 0, len(group.counts))
		for k := range group.counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s %-12s %d\n", group.name, k, group.counts[k])
		}
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
