package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"text/tabwriter"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/ragd/internal/http"
)

var (
	datasetID  string
	outputJSON bool
)

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(retrieveCmd)

	for _, c := range []*cobra.Command{ingestCmd, retrieveCmd} {
		c.Flags().StringVarP(&datasetID, "dataset", "d", "", "Dataset identifier (required)")
		c.Flags().BoolVar(&outputJSON, "json", false, "Output results as JSON")
		_ = c.MarkFlagRequired("dataset")
	}
}

var ingestCmd = &cobra.Command{
	Use:   "ingest --dataset ID LOCATOR...",
	Short: "Ingest documents into a dataset",
	Long: `Fetch, extract, chunk and embed documents into a dataset.

Locators are s3://bucket/key, S3 object URLs or plain http(s) URLs.
Files that fail are listed with the reason; the rest are still ingested.

Examples:
  ragctl ingest --dataset handbook s3://docs/handbook.pdf https://example.com/faq.html`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

var retrieveCmd = &cobra.Command{
	Use:   "retrieve --dataset ID PROMPT",
	Short: "Retrieve the chunks most relevant to a prompt",
	Long: `Embed the prompt and print the three nearest chunks of the dataset, best first.

Examples:
  ragctl retrieve --dataset handbook "How many vacation days do I get?"`,
	Args: cobra.ExactArgs(1),
	RunE: runRetrieve,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var resp httpserver.IngestResponse
	req := httpserver.IngestRequest{Files: args, DatasetID: datasetID}
	if err := call(http.MethodPost, "/ingest", req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, resp)
	}
	fmt.Fprintf(out, "Dataset:  %s\n", resp.DatasetID)
	fmt.Fprintf(out, "Ingested: %d of %d files\n", resp.IngestedFiles, len(args))
	if len(resp.FailedFiles) > 0 {
		fmt.Fprintln(out, "\nFailed:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, f := range resp.FailedFiles {
			fmt.Fprintf(w, "  %s\t%s\n", f.File, f.Error)
		}
		w.Flush()
	}
	return nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	var resp httpserver.RetrieveResponse
	req := httpserver.RetrieveRequest{Prompt: args[0], DatasetID: datasetID}
	if err := call(http.MethodPost, "/retrieve", req, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON {
		return writeJSON(out, resp)
	}
	if len(resp.Chunks) == 0 {
		fmt.Fprintln(out, "No matching chunks.")
		return nil
	}
	for i, c := range resp.Chunks {
		fmt.Fprintf(out, "[%d] %s\n", i+1, c.Chunk)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func datasetPath(id string) string {
	return "/datasets/" + url.PathEscape(id)
}
