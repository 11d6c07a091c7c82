package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"grit/internal/engine"
	"grit/internal/logging"
	"grit/internal/watch"
)

var rootCmd = &cobra.Command{
	Use:   "grit",
	Short: "Grit is a lightweight local version control system",
	Long: `Grit tracks file snapshots of a working directory as an immutable
chain of commits under named branch pointers, with content-addressed
blob storage. Single user, single machine, no network.`,
	SilenceUsage: true,
}

func newLogger() *zap.Logger {
	level := os.Getenv("GRIT_LOG_LEVEL")
	if level == "" {
		level = "error"
	}
	logger, err := logging.New(level)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// findRoot walks up from startDir looking for the control directory.
func findRoot(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, engine.ControlDir)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", errors.New("not inside a grit repository")
}

func openEngine() (*engine.Engine, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting current directory: %w", err)
	}
	root, err := findRoot(cwd)
	if err != nil {
		return nil, err
	}
	return engine.Load(root, newLogger())
}

func init() {
	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Initialize a new repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}

			e, err := engine.Init(dir, newLogger())
			if err != nil {
				return err
			}
			defer e.Close()

			fmt.Println("Initialized empty grit repository in", dir)
			return nil
		},
	}

	var addCmd = &cobra.Command{
		Use:   "add [paths...]",
		Short: "Stage files for the next commit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			for _, path := range args {
				if err := e.Add(path); err != nil {
					return fmt.Errorf("staging %s: %w", path, err)
				}
			}

			fmt.Printf("Staged %d file(s)\n", len(args))
			return nil
		},
	}

	var commitMsg string
	var commitAuthor string
	var commitCmd = &cobra.Command{
		Use:   "commit",
		Short: "Record the staged files as a new commit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if commitMsg == "" {
				return errors.New("commit message is required (-m)")
			}

			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			id, err := e.Commit(commitMsg, commitAuthor)
			if err != nil {
				return err
			}

			status := e.Status()
			fmt.Printf("[%s %s] %s\n", status.Branch, id, commitMsg)
			return nil
		},
	}
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
	commitCmd.Flags().StringVar(&commitAuthor, "author", "", "override the configured author")

	var logLimit int
	var logCmd = &cobra.Command{
		Use:   "log",
		Short: "Show commit history, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			commits := e.Log(logLimit)
			if len(commits) == 0 {
				fmt.Println("No commits yet")
				return nil
			}

			idColor := color.New(color.FgYellow)
			for _, c := range commits {
				idColor.Printf("commit %s\n", c.ID)
				fmt.Printf("Author: %s\n", c.Author)
				fmt.Printf("Date:   %s\n", c.Timestamp)
				fmt.Printf("\n    %s\n\n", c.Message)
			}
			return nil
		},
	}
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "maximum number of commits to show")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the current branch, head, and staged files",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			s := e.Status()
			fmt.Printf("On branch %s\n", color.GreenString(s.Branch))
			if s.Head == "" {
				fmt.Println("No commits yet")
			} else {
				fmt.Printf("HEAD at %s\n", color.YellowString(s.Head))
			}
			fmt.Printf("Total commits: %d\n", s.TotalCommits)

			if len(s.StagedFiles) == 0 {
				fmt.Println("Nothing staged")
				return nil
			}
			fmt.Println("Staged files:")
			for _, path := range s.StagedFiles {
				color.Green("  %s", path)
			}
			return nil
		},
	}

	var branchCmd = &cobra.Command{
		Use:   "branch [name]",
		Short: "List branches, or create one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if len(args) == 0 {
				current := e.Status().Branch
				for _, name := range e.Branches() {
					if name == current {
						color.Green("* %s", name)
					} else {
						fmt.Printf("  %s\n", name)
					}
				}
				return nil
			}

			if err := e.CreateBranch(args[0]); err != nil {
				return err
			}
			fmt.Printf("Created branch %s\n", args[0])
			return nil
		},
	}

	var switchCmd = &cobra.Command{
		Use:   "switch <name>",
		Short: "Switch to another branch (does not touch the working tree)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.SwitchBranch(args[0]); err != nil {
				return err
			}
			fmt.Printf("Switched to branch %s\n", args[0])
			return nil
		},
	}

	var checkoutCmd = &cobra.Command{
		Use:   "checkout <commit>",
		Short: "Restore the working tree to a commit's snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.Checkout(args[0]); err != nil {
				return err
			}
			fmt.Printf("Checked out %s (detached from branch tip)\n", args[0])
			return nil
		},
	}

	var diffCmd = &cobra.Command{
		Use:   "diff <path>",
		Short: "Show a unified diff of a file against the head commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			text, err := e.Diff(args[0])
			if err != nil {
				return err
			}
			if text == "" {
				fmt.Println("No changes")
				return nil
			}
			fmt.Print(text)
			return nil
		},
	}

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the working tree and report file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("getting current directory: %w", err)
			}
			root, err := findRoot(cwd)
			if err != nil {
				return err
			}

			w, err := watch.New(root, engine.ControlDir, newLogger())
			if err != nil {
				return err
			}
			defer w.Close()

			fmt.Println("Watching", root, "(Ctrl-C to stop)")
			for ev := range w.Events() {
				switch ev.Op {
				case watch.Created:
					color.Green("created  %s", ev.Path)
				case watch.Modified:
					color.Yellow("modified %s", ev.Path)
				case watch.Removed:
					color.Red("removed  %s", ev.Path)
				}
			}
			return nil
		},
	}

	rootCmd.AddCommand(initCmd, addCmd, commitCmd, logCmd, statusCmd,
		branchCmd, switchCmd, checkoutCmd, diffCmd, watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
