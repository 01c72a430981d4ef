package client

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempConfig points the global config at a temp file for the test.
func useTempConfig(t *testing.T) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "docqa", "config.json")

	old := getConfigPathFunc
	getConfigPathFunc = func() (string, error) { return configPath, nil }
	t.Cleanup(func() { getConfigPathFunc = old })

	return configPath
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{envAPIURL, envAPIKey, envCustomerID, envProjectID} {
		t.Setenv(name, "")
	}
}

func newFlagCmd(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("api-url", "", "")
	cmd.Flags().String("api-key", "", "")
	cmd.Flags().String("customer", "", "")
	cmd.Flags().String("project", "", "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestGetConfigPath_Default(t *testing.T) {
	path, err := GetConfigPath()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(path))
	assert.True(t, strings.HasSuffix(path, filepath.Join("docqa", "config.json")))
}

func TestGlobalConfig_SaveLoadDelete(t *testing.T) {
	configPath := useTempConfig(t)

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)

	saved := &GlobalConfig{APIURL: "http://docqa:8080", APIKey: "k", CustomerID: "acme", ProjectID: "docs"}
	require.NoError(t, SaveGlobalConfig(saved))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err = LoadGlobalConfig()
	require.NoError(t, err)
	assert.Equal(t, saved, cfg)

	require.NoError(t, DeleteGlobalConfig())
	require.NoError(t, DeleteGlobalConfig())
	cfg, err = LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestSaveGlobalConfig_Nil(t *testing.T) {
	useTempConfig(t)
	assert.Error(t, SaveGlobalConfig(nil))
}

func TestLoadGlobalConfig_Corrupt(t *testing.T) {
	configPath := useTempConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(configPath), 0755))
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0600))

	_, err := LoadGlobalConfig()
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestResolveSettings_Defaults(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)

	s, err := ResolveSettings(nil)
	require.NoError(t, err)
	assert.Equal(t, Settings{APIURL: defaultAPIURL}, s)
}

func TestResolveSettings_Cascade(t *testing.T) {
	useTempConfig(t)
	clearEnv(t)
	require.NoError(t, SaveGlobalConfig(&GlobalConfig{
		APIURL:     "http://saved:8080",
		APIKey:     "saved-key",
		CustomerID: "saved-customer",
		ProjectID:  "saved-project",
	}))
	t.Setenv(envAPIKey, "env-key")
	t.Setenv(envCustomerID, "env-customer")

	s, err := ResolveSettings(newFlagCmd(t, "--customer", "flag-customer"))
	require.NoError(t, err)

	assert.Equal(t, Settings{
		APIURL:     "http://saved:8080",
		APIKey:     "env-key",
		CustomerID: "flag-customer",
		ProjectID:  "saved-project",
	}, s)
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskAPIKey(""))
	assert.Equal(t, "***", maskAPIKey("short"))
	assert.Equal(t, "abcd...wxyz", maskAPIKey("abcdefghijklmnopqrstuvwxyz"))
}
