// cmd/root_test.go
package cmd

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	stdout, _, err := runCommand(t, portalDeps{}, "", "version", "-c", "/nonexistent/quickeval.yaml")
	require.NoError(t, err, "version never loads configuration")
	assert.Equal(t, "quickeval "+Version+"\n", stdout)

	stdout, _, err = runCommand(t, portalDeps{}, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", stdout)
}

func TestRoot_MissingConfigFile(t *testing.T) {
	_, _, err := runCommand(t, portalDeps{}, "", "list", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to initialize configuration")
}

func TestRoot_InvalidConfig(t *testing.T) {
	env := newTestEnv(t, "ftp://portal", "")
	_, _, err := runCommand(t, portalDeps{}, "", "list", "-c", env.ConfigPath)
	assert.ErrorContains(t, err, "portal.base_url must be an http(s) URL")
}

func TestRoot_UnknownLanguage(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	_, _, err := runCommand(t, portalDeps{}, "", "list", "--lang", "!!", "-c", env.ConfigPath)
	assert.ErrorContains(t, err, "invalid locale")
}

func TestRoot_LanguageFlag(t *testing.T) {
	env := newTestEnv(t, "http://127.0.0.1:1", "")
	_, stderr, err := runCommand(t, portalDeps{journal: NewJournalProvider()}, "", "report", "--lang", "zh", "-c", env.ConfigPath)
	require.Error(t, err)
	assert.Contains(t, stderr, "未配置运行日志")
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.EqualError(t, err, "configuration not found in context")
	assert.NotNil(t, getPrinterFromContext(context.Background()))
}
