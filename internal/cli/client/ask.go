package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// AskCmd sends a question to /ask and prints the answer with its sources.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the ingested documents",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAsk,
	}

	cmd.Flags().Int("top-k", 5, "Number of chunks to retrieve")
	cmd.Flags().String("session", "", "Session id for recording the conversation")

	return cmd
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := AskRequest{Question: strings.Join(args, " ")}
	if cmd.Flags().Changed("top-k") {
		topK, _ := cmd.Flags().GetInt("top-k")
		req.TopK = &topK
	}
	req.SessionID, _ = cmd.Flags().GetString("session")

	c, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := c.Ask(cmd.Context(), req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
		return json.NewEncoder(out).Encode(resp)
	}

	fmt.Fprintln(out, resp.Answer)
	if len(resp.Sources) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Sources:")
		seen := make(map[string]bool)
		for _, s := range resp.Sources {
			if seen[s.Source] {
				continue
			}
			seen[s.Source] = true
			fmt.Fprintf(out, "  - %s\n", s.Source)
		}
	}
	return nil
}
