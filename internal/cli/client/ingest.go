package client

import (
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// IngestCmd uploads a local file to /ingest.
func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Upload a text document for indexing",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}

	cmd.Flags().String("content-type", "", "Content type of the file (default: guessed from the extension)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := args[0]

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	contentType, _ := cmd.Flags().GetString("content-type")
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(path))
	}

	c, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := c.Ingest(cmd.Context(), path, contentType, f)
	if err != nil {
		return err
	}

	if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(resp)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks as %s\n", resp.Chunks, resp.Key)
	return nil
}
