package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [task]...",
	Short: "List the declared tasks",
	Long: `List every declared task with its prerequisites. Given task names, print
the order in which running them would execute tasks instead.

Examples:
  staticpress tasks               # All tasks
  staticpress tasks deploy        # What "run deploy" executes, in order`,
	ValidArgsFunction: completeTasks,
	RunE:              runTasksCommand,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasksCommand(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	graph := a.site.Graph()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		order, err := graph.Order(args...)
		if err != nil {
			return err
		}
		for _, name := range order {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tDEPENDS ON\tDESCRIPTION")
	for _, task := range graph.Tasks() {
		deps := strings.Join(task.Deps, ", ")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", task.Name, deps, task.Description)
	}
	return w.Flush()
}
