package main

import (
	"bufio"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yantianqi1/write-agent/internal/generator"
)

// newChatCmd is the interactive REPL surface over component G's chat
// entrypoint (spec.md §6). There is no HTTP transport in scope (spec.md's
// Non-goals exclude a server API), so a terminal loop is the full interface,
// mirroring cmd/hector's own chat_direct.go terminal loop.
func newChatCmd() *cobra.Command {
	var projectID, sessionID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive writing session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}

			if projectID == "" {
				projectID = "default"
			}

			fmt.Fprintf(cmd.OutOrStdout(), "storyagent ready (project %q). Type your message, Ctrl-D to exit.\n", projectID)
			scanner := bufio.NewScanner(cmd.InOrStdin())
			for scanner.Scan() {
				line := scanner.Text()
				if line == "" {
					continue
				}

				reply, err := a.agent.Chat(ctx, sessionID, projectID, line)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				sessionID = reply.SessionID

				fmt.Fprintln(cmd.OutOrStdout(), reply.Text)
				if reply.Generated != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "\n--- chapter %d (%d words) ---\n%s\n---\n",
						reply.Generated.ChapterNumber, reply.Generated.WordCount, reply.Generated.Content)
				}
				if reply.Consistency != nil && reply.Consistency.HasError() {
					fmt.Fprintln(cmd.OutOrStdout(), "(consistency issues flagged — see generate_chapter report)")
				}
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project identifier (defaults to \"default\")")
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	return cmd
}

// newGenerateCmd is a one-shot wrapper over generate_chapter (spec.md §6),
// for scripting a single chapter draft outside the conversational loop.
func newGenerateCmd() *cobra.Command {
	var projectID, mode, constraints string
	var chapterNumber int

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate or rewrite a single chapter",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}

			m, err := parseMode(mode)
			if err != nil {
				return err
			}

			result, err := a.agent.GenerateChapter(ctx, projectID, chapterNumber, m, constraints)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "chapter %d (%s, %d words):\n\n%s\n",
				result.Chapter.ChapterNumber, result.Chapter.Status, result.Chapter.WordCount, result.Chapter.Content)
			if result.ConsistencyReport.HasError() {
				fmt.Fprintln(cmd.OutOrStdout(), "\nconsistency issues were flagged for this draft.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	cmd.Flags().IntVar(&chapterNumber, "chapter", 1, "chapter number")
	cmd.Flags().StringVar(&mode, "mode", "FULL", "generation mode: FULL|CONTINUE|EXPAND|REWRITE")
	cmd.Flags().StringVar(&constraints, "constraints", "", "freeform constraints for this draft")
	cmd.MarkFlagRequired("project")
	return cmd
}

// newListCmd lists every generation record for a project (spec.md §6:
// "list_generations(project_id) -> records").
func newListCmd() *cobra.Command {
	var projectID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chapter generation records for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}

			records, err := a.agent.ListGenerations(ctx, projectID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, r := range records {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d words\t%s\n", r.ChapterNumber, r.Status, r.Mode, r.WordCount, r.ID)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "project identifier")
	cmd.MarkFlagRequired("project")
	return cmd
}

func parseMode(s string) (generator.Mode, error) {
	switch generator.Mode(s) {
	case generator.Full, generator.Continue, generator.Expand, generator.Rewrite:
		return generator.Mode(s), nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", s)
	}
}
