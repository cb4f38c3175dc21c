package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/botirk38/llmtopics"
	"github.com/botirk38/llmtopics/classify"
	"github.com/botirk38/llmtopics/options"
	"github.com/botirk38/llmtopics/store"
)

type fitFlags struct {
	topics   int
	strategy string
	output   string
	history  string
	dbPath   string
	asJSON   bool
}

func newFitCommand(ctx *commandContext) *cobra.Command {
	var flags fitFlags

	cmd := &cobra.Command{
		Use:   "fit <documents>",
		Short: "Fit topics to a document file (.txt lines or .jsonl records, - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("topics") {
				cfg.Topics = flags.topics
			}
			if cmd.Flags().Changed("strategy") {
				cfg.Strategy = flags.strategy
			}
			if cmd.Flags().Changed("history") {
				cfg.HistoryPath = flags.history
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = flags.dbPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			docs, err := readDocuments(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return llmtopics.ErrNoDocuments
			}

			logger, err := ctx.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			opts := append(cfg.Options(), options.WithLogger(logger))
			if cfg.DBPath != "" {
				s, err := store.Open(cfg.DBPath)
				if err != nil {
					return err
				}
				defer s.Close()
				opts = append(opts, options.WithStore(s))
			}

			model, err := llmtopics.New(opts...)
			if err != nil {
				return err
			}
			defer model.Close()

			result, err := model.FitTransform(cmd.Context(), docs)
			if err != nil {
				return fmt.Errorf("fit: %w", err)
			}

			if flags.output != "" {
				if err := writeJSONFile(flags.output, result); err != nil {
					return fmt.Errorf("write %s: %w", flags.output, err)
				}
			}
			if flags.asJSON {
				return writeJSON(cmd, result)
			}
			return printFitSummary(cmd, result)
		},
	}

	cmd.Flags().IntVarP(&flags.topics, "topics", "n", 0, "Number of topics (one-shot accepts 0 to let the model decide)")
	cmd.Flags().StringVarP(&flags.strategy, "strategy", "s", "", "Reduction strategy: iterative or oneshot")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Write the full result as JSON to this file")
	cmd.Flags().StringVar(&flags.history, "history", "", "Merge history file (empty disables it)")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "SQLite database to record the run in")
	cmd.Flags().BoolVar(&flags.asJSON, "json", false, "Print the result as JSON instead of a table")

	return cmd
}

func printFitSummary(cmd *cobra.Command, result *llmtopics.Result) error {
	counts := make([]int, len(result.Topics))
	unresolved := 0
	for _, idx := range result.Assignments {
		if idx < 0 || idx >= len(counts) {
			unresolved++
			continue
		}
		counts[idx]++
	}

	rows := make([][]string, 0, len(result.Topics)+1)
	for i, topic := range result.Topics {
		rows = append(rows, []string{strconv.Itoa(i), topic, strconv.Itoa(counts[i])})
	}
	if unresolved > 0 {
		rows = append(rows, []string{"-", classify.Placeholder, strconv.Itoa(unresolved)})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"#", "Topic", "Documents"}, rows, []columnAlignment{alignRight, alignLeft, alignRight}))
	fmt.Fprintf(out, "%d documents, %d topics", len(result.Assignments), result.TopicCount)
	if result.Repair != nil {
		fmt.Fprintf(out, ", %d repaired in %d passes", result.Repair.Repaired, result.Repair.Passes)
	}
	if result.RunID != "" {
		fmt.Fprintf(out, ", run %s", result.RunID)
	}
	fmt.Fprintln(out)
	return nil
}
