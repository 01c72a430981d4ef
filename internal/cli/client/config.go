package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const (
	envAPIURL     = "DOCQA_API_URL"
	envAPIKey     = "DOCQA_API_KEY"
	envCustomerID = "DOCQA_CUSTOMER_ID"
	envProjectID  = "DOCQA_PROJECT_ID"

	defaultAPIURL = "http://localhost:8080"
)

// GlobalConfig is the saved client profile in config.json.
type GlobalConfig struct {
	APIURL     string `json:"api_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
	ProjectID  string `json:"project_id,omitempty"`
}

var (
	getConfigDirFunc  = defaultGetConfigDir
	getConfigPathFunc = defaultGetConfigPath
)

func defaultGetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "docqa"), nil
}

func defaultGetConfigPath() (string, error) {
	configDir, err := getConfigDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig reads and parses the global config.json file
// Returns nil config (not error) if file doesn't exist
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config to config.json with 0600 permissions
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DeleteGlobalConfig removes the config.json file
func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}

	return nil
}

// Settings are the resolved connection parameters for one invocation.
type Settings struct {
	APIURL     string
	APIKey     string
	CustomerID string
	ProjectID  string
}

// ResolveSettings applies the cascade flag → env → global config → default,
// field by field. cmd may be nil.
func ResolveSettings(cmd *cobra.Command) (Settings, error) {
	s := Settings{
		APIURL:     flagValue(cmd, "api-url"),
		APIKey:     flagValue(cmd, "api-key"),
		CustomerID: flagValue(cmd, "customer"),
		ProjectID:  flagValue(cmd, "project"),
	}

	fill(&s.APIURL, os.Getenv(envAPIURL))
	fill(&s.APIKey, os.Getenv(envAPIKey))
	fill(&s.CustomerID, os.Getenv(envCustomerID))
	fill(&s.ProjectID, os.Getenv(envProjectID))

	if s.APIURL == "" || s.APIKey == "" || s.CustomerID == "" || s.ProjectID == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return Settings{}, err
		}
		if global != nil {
			fill(&s.APIURL, global.APIURL)
			fill(&s.APIKey, global.APIKey)
			fill(&s.CustomerID, global.CustomerID)
			fill(&s.ProjectID, global.ProjectID)
		}
	}

	fill(&s.APIURL, defaultAPIURL)
	return s, nil
}

func flagValue(cmd *cobra.Command, name string) string {
	if cmd == nil {
		return ""
	}
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		return ""
	}
	return v
}

func fill(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}
