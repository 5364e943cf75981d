package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anatolykoptev/go_vidsearch/internal/engine/history"
)

func newHistoryCommand(tuning *string) *cobra.Command {
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent searches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*tuning)
			if err != nil {
				return err
			}
			store := openHistory(cmd.Context(), cfg)
			if store == nil {
				return errors.New("search history is unavailable")
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd, history.ListResult{Searches: entries, Total: len(entries)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), historyTable(entries))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of searches to show (max 100)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print as JSON")
	return cmd
}

func historyTable(entries []history.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		flag := ""
		if e.Degraded {
			flag = "partial"
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			e.Idea,
			e.Intent,
			strings.Join(e.ContentTypes, ","),
			strconv.Itoa(e.TotalResults),
			strconv.Itoa(e.QuotaUsed),
			flag,
		})
	}
	return renderTable(
		[]string{"When", "Idea", "Intent", "Types", "Results", "Quota", ""},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}
