package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/botirk38/llmtopics/classify"
	"github.com/botirk38/llmtopics/store"
)

var errNoDatabase = errors.New("no database configured (use --db or db_path)")

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var dbPath string

	openStore := func() (*store.Store, error) {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, err
		}
		path := cfg.DBPath
		if dbPath != "" {
			path = dbPath
		}
		if path == "" {
			return nil, errNoDatabase
		}
		return store.Open(path)
	}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect fits recorded in the run database",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (defaults to db_path)")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.ListRuns(cmd.Context())
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID,
					r.CreatedAt.Local().Format(time.DateTime),
					r.Strategy,
					r.Model,
					strconv.Itoa(r.TopicCount),
					strconv.Itoa(r.Documents),
					strconv.Itoa(r.Unresolved),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Created", "Strategy", "Model", "Topics", "Documents", "Unresolved"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	})

	var showJSON bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the topics of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			run, err := s.LoadRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if showJSON {
				return writeJSON(cmd, run)
			}

			counts := make(map[int]int)
			for _, idx := range run.Assignments {
				counts[idx]++
			}
			rows := make([][]string, 0, len(run.Topics)+1)
			for i, topic := range run.Topics {
				rows = append(rows, []string{strconv.Itoa(i), topic, strconv.Itoa(counts[i])})
			}
			if n := len(classify.Unresolved(run.Assignments)); n > 0 {
				rows = append(rows, []string{"-", classify.Placeholder, strconv.Itoa(n)})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s (%s, %s, %d merge steps)\n", run.ID, run.Strategy, run.Model, max(len(run.History)-1, 0))
			fmt.Fprintln(out, renderTable([]string{"#", "Topic", "Documents"}, rows, []columnAlignment{alignRight, alignLeft, alignRight}))
			return nil
		},
	}
	show.Flags().BoolVar(&showJSON, "json", false, "Print the run as JSON")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	})

	return cmd
}
