package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewDatasetCmd создаёт группу команд для управления datasets.
func NewDatasetCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dataset",
		Short: "Manage datasets",
	}

	cmd.AddCommand(
		newDatasetListCmd(clientFn, outputFn),
		newDatasetCreateCmd(clientFn, outputFn),
		newDatasetShowCmd(clientFn, outputFn),
	)

	return cmd
}

func datasetRow(ds DatasetResponse) []string {
	return []string{ds.ID, ds.Name, ds.FilePath, ds.UploadedAt}
}

var datasetHeaders = []string{"ID", "NAME", "FILE", "UPLOADED"}

func newDatasetListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all datasets",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			datasets, err := client.ListDatasets()
			if err != nil {
				return err
			}

			rows := make([][]string, len(datasets))
			for i, ds := range datasets {
				rows[i] = datasetRow(ds)
			}

			out.Print(datasetHeaders, rows, datasets)
			return nil
		},
	}
}

func newDatasetCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var name, description, filePath string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a dataset file",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ds, err := client.CreateDataset(CreateDatasetRequest{
				Name:        name,
				Description: description,
				FilePath:    filePath,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Dataset registered: %s", ds.ID))
			out.Print(datasetHeaders, [][]string{datasetRow(*ds)}, ds)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Dataset name (required)")
	cmd.Flags().StringVar(&description, "description", "", "Dataset description")
	cmd.Flags().StringVar(&filePath, "file", "", "Path to JSONL file on the server (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("file")

	return cmd
}

func newDatasetShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show dataset details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			ds, err := client.GetDataset(args[0])
			if err != nil {
				return err
			}

			out.Print(datasetHeaders, [][]string{datasetRow(*ds)}, ds)
			return nil
		},
	}
}
