package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewEvalCmd создаёт группу команд для управления evaluations.
func NewEvalCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Manage evaluations",
	}

	cmd.AddCommand(
		newEvalListCmd(clientFn, outputFn),
		newEvalRunCmd(clientFn, outputFn),
		newEvalShowCmd(clientFn, outputFn),
	)

	return cmd
}

func evalRow(er EvalRunResponse) []string {
	return []string{er.ID, er.EvalName, er.WorkflowID, er.Status, strconv.Itoa(er.NumSamples)}
}

var evalHeaders = []string{"ID", "EVAL", "WORKFLOW", "STATUS", "SAMPLES"}

func newEvalListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List evaluation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			runs, err := client.ListEvalRuns()
			if err != nil {
				return err
			}

			rows := make([][]string, len(runs))
			for i, er := range runs {
				rows[i] = evalRow(er)
			}

			out.Print(evalHeaders, rows, runs)
			return nil
		},
	}
}

func newEvalRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var evalName, workflowID, datasetID, outputVariable string
	var numSamples int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run an evaluation and wait for results",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			er, err := client.RunEvaluation(RunEvaluationRequest{
				EvalName:       evalName,
				WorkflowID:     workflowID,
				DatasetID:      datasetID,
				OutputVariable: outputVariable,
				NumSamples:     numSamples,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Evaluation finished: %s (%s)", er.ID, er.Status))
			out.Print(evalHeaders, [][]string{evalRow(*er)}, er)
			return nil
		},
	}

	cmd.Flags().StringVar(&evalName, "name", "", "Evaluation name (required)")
	cmd.Flags().StringVar(&workflowID, "workflow", "", "Workflow ID (required)")
	cmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset ID (required)")
	cmd.Flags().StringVar(&outputVariable, "output-variable", "", "Output variable to extract (required)")
	cmd.Flags().IntVar(&numSamples, "samples", 0, "Number of samples (default 10)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("workflow")
	cmd.MarkFlagRequired("dataset")
	cmd.MarkFlagRequired("output-variable")

	return cmd
}

func newEvalShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show evaluation details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			er, err := client.GetEvalRun(args[0])
			if err != nil {
				return err
			}

			out.Print(evalHeaders, [][]string{evalRow(*er)}, er)
			return nil
		},
	}
}
