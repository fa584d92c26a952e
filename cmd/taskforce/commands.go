package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/nidhogg/taskforce/internal/agent"
	"github.com/nidhogg/taskforce/internal/store"
	"github.com/spf13/cobra"
)

func newRunCommand(c *cli) *cobra.Command {
	var (
		agentName     string
		maxIterations int
	)
	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task with the general agent or a named specialized agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			task := strings.Join(args, " ")
			n := iterations(maxIterations, c)
			if agentName == "" {
				return printResult(cmd.OutOrStdout(), a.general.Execute(cmd.Context(), task, n))
			}
			sa, ok := a.catalog.Get(agentName)
			if !ok {
				return fmt.Errorf("agent %q not found (have %s)", agentName, strings.Join(a.catalog.Names(), ", "))
			}
			return printResult(cmd.OutOrStdout(), sa.ExecuteTask(cmd.Context(), task, n))
		},
	}
	cmd.Flags().StringVarP(&agentName, "agent", "a", "", "Specialized agent to run")
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Override agent.max_iterations")
	return cmd
}

func newRouteCommand(c *cli) *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "route <task>",
		Short: "Classify a task and run it on the best specialized agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			resp := a.router.Route(cmd.Context(), strings.Join(args, " "), iterations(maxIterations, c))
			return printResult(cmd.OutOrStdout(), resp)
		},
	}
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Override agent.max_iterations")
	return cmd
}

func newOrchestrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "orchestrate <task>",
		Short: "Decompose a task into sub-goals and delegate them to specialized agents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()
			return printResult(cmd.OutOrStdout(), a.supervisor.Orchestrate(cmd.Context(), strings.Join(args, " ")))
		},
	}
}

func newBatchCommand(c *cli) *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run every non-empty line of a file as an independent task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks, err := readTasks(args[0])
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			results := a.batch.Run(cmd.Context(), tasks, iterations(maxIterations, c))
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if !r.Success {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tasks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "Override agent.max_iterations for every task")
	return cmd
}

func newChatCommand(c *cli) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent that remembers the conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			sess, err := agent.OpenSession(cmd.Context(), sessionID, a.storage, a.deps, c.cfg.Agent.MaxIterations)
			if err != nil {
				return err
			}
			return chatLoop(cmd, sess)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume (new session when empty)")
	return cmd
}

func chatLoop(cmd *cobra.Command, sess *agent.Session) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Session %s (%d messages). Type 'exit' to leave, '/clear' to reset.\n", sess.ID(), len(sess.History()))

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "/clear":
			if err := sess.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "History cleared.")
			continue
		}

		reply, err := sess.Send(cmd.Context(), input)
		if err != nil {
			return err
		}
		for _, s := range reply.Steps {
			if s.Action != "" {
				fmt.Fprintf(out, "  [%d] %s\n", s.Iteration, s.Action)
			}
		}
		fmt.Fprintln(out, reply.Message)
	}
}

func newSessionsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored conversations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, closeStorage, err := store.Open(cmd.Context(), c.cfg.StoreOptions(), c.logger)
			if err != nil {
				return err
			}
			defer closeStorage()
			ids, err := storage.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, closeStorage, err := store.Open(cmd.Context(), c.cfg.StoreOptions(), c.logger)
			if err != nil {
				return err
			}
			defer closeStorage()
			if err := store.ValidateSessionID(args[0]); err != nil {
				return err
			}
			return storage.Delete(cmd.Context(), args[0])
		},
	})
	return cmd
}

func iterations(flag int, c *cli) int {
	if flag > 0 {
		return flag
	}
	return c.cfg.Agent.MaxIterations
}

func readTasks(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open batch file: %w", err)
	}
	defer f.Close()

	var tasks []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && !strings.HasPrefix(line, "#") {
			tasks = append(tasks, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("batch file %s has no tasks", path)
	}
	return tasks, nil
}

// printResult writes the caller-facing result and fails the command when the
// task did not succeed.
func printResult(w io.Writer, resp agent.Response) error {
	result := agent.ToResult(resp)
	if err := writeJSON(w, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("task did not succeed: %s", result.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
