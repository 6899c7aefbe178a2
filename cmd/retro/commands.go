package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/retro/internal/api"
	"github.com/pbaille/retro/internal/domain"
	"github.com/pbaille/retro/internal/journal"
)

func listCmd() *cobra.Command {
	var year string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.journal.Entries(cmd.Context())
			if err != nil {
				return err
			}

			if year != "" {
				y, err := parseYear(year)
				if err != nil {
					return err
				}
				var filtered []domain.Record
				for _, e := range entries {
					if e.Year == y {
						filtered = append(filtered, e)
					}
				}
				entries = filtered
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries yet. Use 'retro add' to create one.")
				return nil
			}

			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %s  | %s\n",
					shortID(e.ID), formatYear(e.Year), truncate(e.Question, 40), truncate(strings.Join(e.Answers, " / "), 60))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&year, "year", "y", "", "only show this year")
	return cmd
}

func addCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "add [year] [question] [answer...]",
		Short: "Add an entry; each extra argument is one answer",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			add := a.journal.AddUnique
			if force {
				add = a.journal.Add
			}

			entries, err := add(ctx, domain.Draft{Year: year, Question: args[1], Answers: args[2:]})
			var dup *journal.DuplicateError
			if errors.As(err, &dup) {
				fmt.Fprintf(out, "%s already has this question (%s). Use --force to add anyway.\n",
					formatYear(year), shortID(dup.Existing.ID))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Added entry: %s\n", shortID(newest(entries).ID))
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "add even if the year already has this question")
	return cmd
}

func editCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "edit [id] [year] [question] [answer...]",
		Short: "Replace an entry's year, question and answers",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[1])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolveID(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}

			if _, err := a.journal.Update(cmd.Context(), id, domain.Draft{Year: year, Question: args[2], Answers: args[3:]}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated entry: %s\n", shortID(id))
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := resolveID(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}

			if _, err := a.journal.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry: %s\n", shortID(id))
			return nil
		},
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [year] [question]",
		Short: "Check whether a year already has a question",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			existing, ok, err := a.journal.FindSameYearQuestion(cmd.Context(), year, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintln(out, "Not asked yet.")
				return nil
			}
			fmt.Fprintf(out, "Already asked: %s  %s\n", shortID(existing.ID), strings.Join(existing.Answers, " / "))
			return nil
		},
	}
}

func bankCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "bank",
		Short: "List questions by how often they were asked",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			bank, err := a.journal.QuestionBank(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(bank) == 0 {
				fmt.Fprintln(out, "No questions yet.")
				return nil
			}

			if limit > 0 && len(bank) > limit {
				bank = bank[:limit]
			}
			for _, q := range bank {
				fmt.Fprintf(out, "%3d  %s\n", q.Count, truncate(q.Question, 70))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of questions to show")
	return cmd
}

func timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline [question]",
		Short: "Show one question's answers year by year",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			points, err := a.journal.Timeline(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(points) == 0 {
				fmt.Fprintln(out, "No matching entries found.")
				return nil
			}

			for _, p := range points {
				fmt.Fprintf(out, "%s\n", formatYear(p.Year))
				if len(p.Answers) == 0 {
					fmt.Fprintln(out, "  (no answer)")
				}
				for _, ans := range p.Answers {
					fmt.Fprintf(out, "  - %s\n", ans)
				}
			}
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON backup",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			blob, err := a.journal.Export(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), string(blob))
				return err
			}
			if err := os.WriteFile(output, blob, 0644); err != nil {
				return fmt.Errorf("write backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported backup to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Restore entries from a JSON backup, replacing the current ones",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text []byte
			var err error
			if args[0] == "-" {
				text, err = io.ReadAll(cmd.InOrStdin())
			} else {
				text, err = os.ReadFile(args[0])
			}
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.journal.Import(cmd.Context(), text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries\n", len(entries))
			return nil
		},
	}
}

func rolloverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollover [year]",
		Short: "Copy last year's questions into [year] with blank answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := parseYear(args[0])
			if err != nil {
				return err
			}

			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.journal.Rollover(cmd.Context(), year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d, skipped %d (already in %s)\n", res.Added, res.Skipped, formatYear(year))
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade legacy single-answer entries if needed",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.journal.Migrate(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !res.Migrated {
				fmt.Fprintf(out, "Nothing to migrate (%d entries)\n", res.Count)
				return nil
			}
			fmt.Fprintf(out, "Migrated %d legacy entries from %s\n", res.Count, a.cfg.Slots.Legacy)
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			server := api.New(a.journal, addr, a.log)
			return server.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "server address (overrides config)")
	return cmd
}

// resolveID finds the unique entry id starting with prefix
func resolveID(ctx context.Context, a *app, prefix string) (string, error) {
	entries, err := a.journal.Entries(ctx)
	if err != nil {
		return "", err
	}

	var found []string
	for _, e := range entries {
		if e.ID == prefix {
			return e.ID, nil
		}
		if strings.HasPrefix(e.ID, prefix) {
			found = append(found, e.ID)
		}
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("entry not found: %s", prefix)
	case 1:
		return found[0], nil
	}
	return "", fmt.Errorf("ambiguous id %s matches %d entries", prefix, len(found))
}

// newest is the first entry of a newest-first collection
func newest(entries []domain.Record) domain.Record {
	if len(entries) == 0 {
		return domain.Record{}
	}
	return entries[0]
}
