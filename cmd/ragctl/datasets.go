package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
)

var chunkWidth int

func init() {
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(chunksCmd)
	rootCmd.AddCommand(deleteCmd)

	datasetsCmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	chunksCmd.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
	chunksCmd.Flags().IntVar(&chunkWidth, "width", 80, "Truncate chunk text to this many characters (0 for no limit)")
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List every dataset in the index",
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

var chunksCmd = &cobra.Command{
	Use:   "chunks DATASET",
	Short: "List the chunks stored for a dataset",
	Args:  cobra.ExactArgs(1),
	RunE:  runChunks,
}

var deleteCmd = &cobra.Command{
	Use:   "delete DATASET",
	Short: "Delete all data of a dataset",
	Long: `Delete every chunk stored for a dataset. The server waits for the index
to apply the deletion before answering.

Examples:
  ragctl delete handbook`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDatasets(cmd *cobra.Command, args []string) error {
	var resp httpserver.DatasetsResponse
	if err := call(http.MethodGet, "/datasets", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, resp)
	}
	if len(resp.Datasets) == 0 {
		fmt.Fprintln(out, "No datasets.")
		return nil
	}
	for _, id := range resp.Datasets {
		fmt.Fprintln(out, id)
	}
	return nil
}

func runChunks(cmd *cobra.Command, args []string) error {
	var resp httpserver.ChunksResponse
	if err := call(http.MethodGet, datasetPath(args[0])+"/chunks", nil, &resp); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, resp)
	}
	if len(resp.Chunks) == 0 {
		fmt.Fprintf(out, "No chunks in dataset %s.\n", resp.DatasetID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPOS\tCHUNK")
	for _, c := range resp.Chunks {
		fmt.Fprintf(w, "%s\t%d\t%s\n", c.Source, c.Position, truncate(c.Chunk, chunkWidth))
	}
	return w.Flush()
}

func runDelete(cmd *cobra.Command, args []string) error {
	var resp httpserver.MessageResponse
	if err := call(http.MethodDelete, datasetPath(args[0]), nil, &resp); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
	return nil
}

// truncate shortens s to maxLen runes with an ellipsis. Zero disables it.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}
