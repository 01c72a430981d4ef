package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the saved connection profile",
		Long:  "Save, clear and inspect the API URL, key and tenant used by docqa",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

// AuthLoginCmd saves the resolved settings so later commands need no flags.
func AuthLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save API URL, key and tenant",
		Long:  "Store the current --api-url, --api-key, --customer and --project in the global config",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ResolveSettings(cmd)
			if err != nil {
				return err
			}
			if s.CustomerID == "" || s.ProjectID == "" {
				return fmt.Errorf("--customer and --project are required")
			}

			if err := SaveGlobalConfig(&GlobalConfig{
				APIURL:     s.APIURL,
				APIKey:     s.APIKey,
				CustomerID: s.CustomerID,
				ProjectID:  s.ProjectID,
			}); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Saved connection profile")
			return nil
		},
	}
}

// AuthLogoutCmd creates the auth logout command
func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the saved profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Removed connection profile")
			return nil
		},
	}
}

// AuthStatusCmd creates the auth status command
func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the settings commands will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := ResolveSettings(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON, _ := cmd.Flags().GetBool("output"); outputJSON {
				data, err := json.MarshalIndent(map[string]string{
					"api_url":     s.APIURL,
					"api_key":     maskAPIKey(s.APIKey),
					"customer_id": s.CustomerID,
					"project_id":  s.ProjectID,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal status: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			fmt.Fprintf(out, "API URL: %s\n", s.APIURL)
			fmt.Fprintf(out, "API Key: %s\n", maskAPIKey(s.APIKey))
			fmt.Fprintf(out, "Customer: %s\n", s.CustomerID)
			fmt.Fprintf(out, "Project: %s\n", s.ProjectID)
			return nil
		},
	}
}

func maskAPIKey(key string) string {
	switch {
	case key == "":
		return "(not set)"
	case len(key) < 8:
		return "***"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}
