// Command seoflow runs a content-campaign agent workforce.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/seoflow-ai/seoflow"
	"github.com/seoflow-ai/seoflow/pkg/config"
	"github.com/seoflow-ai/seoflow/proto"
)

// version is set via ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "seoflow",
		Short:         "Multi-agent workforce for SEO content campaigns",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "seoflow.yaml", "configuration file")

	root.AddCommand(runCmd(&configPath))
	root.AddCommand(chatCmd(&configPath))
	root.AddCommand(versionCmd())
	return root
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		// No file: run with defaults, keys from the environment.
		return config.Parse(nil)
	}
	return cfg, err
}

func runCmd(configPath *string) *cobra.Command {
	var goal string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the workforce and run a campaign goal to completion",
		RunE: func(cmd *cobra.Command, args []string) error {
			if goal == "" {
				return errors.New("--goal is required")
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sys, err := seoflow.NewSystem(ctx, cfg)
			if err != nil {
				return err
			}
			if err := sys.Start(ctx); err != nil {
				return err
			}
			defer shutdown(sys)

			rootID, err := sys.Workforce.SubmitGoal(ctx, goal, goal)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "goal submitted, task %s\n", rootID)

			return watchGoal(ctx, cmd, sys, rootID)
		},
	}
	cmd.Flags().StringVarP(&goal, "goal", "g", "", "campaign goal to execute")
	return cmd
}

// watchGoal polls the task tree until every subtask reaches a terminal state
// or ctx is canceled.
func watchGoal(ctx context.Context, cmd *cobra.Command, sys *seoflow.System, rootID string) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	reported := make(map[string]proto.TaskStatus)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		subs := sys.Workforce.Subtasks(rootID)
		allDone := len(subs) > 0
		for _, t := range subs {
			if reported[t.ID] != t.Status {
				reported[t.ID] = t.Status
				fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s: %s\n", t.Status, t.Title, t.Detail)
			}
			if !t.Status.Terminal() {
				allDone = false
			}
		}
		if root, err := sys.Workforce.GetStatus(rootID); err == nil && root.Status.Terminal() {
			fmt.Fprintf(cmd.OutOrStdout(), "goal %s: %s\n", root.Status, root.Detail)
			return nil
		}
		if allDone {
			fmt.Fprintln(cmd.OutOrStdout(), "all subtasks finished")
			return nil
		}
	}
}

func chatCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive session: submit goals and inspect task status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			sys, err := seoflow.NewSystem(ctx, cfg)
			if err != nil {
				return err
			}
			if err := sys.Start(ctx); err != nil {
				return err
			}
			defer shutdown(sys)

			line := liner.NewLiner()
			defer line.Close()
			line.SetCtrlCAborts(true)

			fmt.Fprintln(cmd.OutOrStdout(), "commands: goal <text>, status <task-id>, agents, quit")
			for {
				input, err := line.Prompt("seoflow> ")
				if err != nil {
					// liner.ErrPromptAborted on Ctrl-C, io.EOF on Ctrl-D.
					return nil
				}
				input = strings.TrimSpace(input)
				if input == "" {
					continue
				}
				line.AppendHistory(input)
				if input == "quit" || input == "exit" {
					return nil
				}
				handleChatCommand(ctx, cmd, sys, input)
			}
		},
	}
}

func handleChatCommand(ctx context.Context, cmd *cobra.Command, sys *seoflow.System, input string) {
	out := cmd.OutOrStdout()
	verb, rest, _ := strings.Cut(input, " ")
	switch verb {
	case "goal":
		if rest == "" {
			fmt.Fprintln(out, "usage: goal <text>")
			return
		}
		id, err := sys.Workforce.SubmitGoal(ctx, rest, rest)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(out, "task %s\n", id)

	case "status":
		if rest == "" {
			fmt.Fprintln(out, "usage: status <task-id>")
			return
		}
		task, err := sys.Workforce.GetStatus(rest)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return
		}
		fmt.Fprintf(out, "%s  %s  %s\n", task.ID, task.Status, task.Title)
		if task.Detail != "" {
			fmt.Fprintf(out, "  %s\n", task.Detail)
		}
		for _, sub := range sys.Workforce.Subtasks(task.ID) {
			fmt.Fprintf(out, "  %s  %s  %s\n", sub.ID, sub.Status, sub.Title)
		}

	case "agents":
		for _, info := range sys.Workforce.ListAgents() {
			fmt.Fprintf(out, "%s  %-16s %-8s tools=%s\n",
				info.ID, info.Role, info.Status, strings.Join(info.Tools, ","))
		}

	default:
		fmt.Fprintf(out, "unknown command %q\n", verb)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "seoflow", version)
		},
	}
}

func shutdown(sys *seoflow.System) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := sys.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
