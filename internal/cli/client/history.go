package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// HistoryCmd prints the turns recorded for a session id.
func HistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the questions and answers recorded for a session",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	c, err := NewAPIClientWithCmd(cmd)
	if err != nil {
		return err
	}

	resp, err := c.History(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
		return json.NewEncoder(out).Encode(resp)
	}

	if len(resp.Turns) == 0 {
		fmt.Fprintf(out, "No turns recorded for session %s\n", resp.SessionID)
		return nil
	}
	for i, turn := range resp.Turns {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "[%s] Q: %s\n", turn.AskedAt.Local().Format(time.RFC3339), turn.Question)
		fmt.Fprintf(out, "A: %s\n", turn.Answer)
	}
	return nil
}
