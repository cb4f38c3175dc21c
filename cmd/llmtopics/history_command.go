package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/botirk38/llmtopics/reduce"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [file]",
		Short: "Show a saved merge history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.HistoryPath
			if len(args) == 1 {
				path = args[0]
			}

			history, err := reduce.ReadHistory(path)
			if err != nil {
				return err
			}
			if err := history.Validate(); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if asJSON {
				return writeJSON(cmd, history)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderHistory(history))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the history as JSON")
	return cmd
}

func renderHistory(history reduce.History) string {
	rows := make([][]string, 0, len(history))
	for _, entry := range history {
		rows = append(rows, []string{
			strconv.Itoa(entry.Step),
			strconv.Itoa(len(entry.Topics)),
			describeMerge(entry),
		})
	}
	return renderTable([]string{"Step", "Topics", "Merge"}, rows, []columnAlignment{alignRight, alignRight, alignLeft})
}

// describeMerge renders the entry's merge as "a + b -> ab".
func describeMerge(entry reduce.HistoryEntry) string {
	if entry.Step == 0 {
		return "origin"
	}
	for _, topic := range entry.Topics {
		if parents := entry.Parents[topic]; len(parents) == 2 {
			return fmt.Sprintf("%s -> %s", strings.Join(parents, " + "), topic)
		}
	}
	return ""
}
