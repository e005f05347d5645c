package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/brigade/workflow"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <workflow.yaml>",
		Short: "Validate a workflow definition and print its step order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.Load(args[0])
			if err != nil {
				return err
			}
			order, err := workflow.TopologicalOrder(wf)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "workflow %s is valid (%d steps)\n", wf.ID, len(wf.Steps))
			for i, id := range order {
				step, _ := wf.Step(id)
				fmt.Fprintf(out, "%2d. %s (%s)\n", i+1, id, step.TaskType)
			}
			return nil
		},
	}
}
