package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDir_NoConfigFile(t *testing.T) {
	cfg, err := LoadDir(t.TempDir(), "")
	require.NoError(t, err)

	assert.Empty(t, cfg.ProjectID)
	assert.False(t, cfg.Upload)
	assert.Nil(t, cfg.AdditionalEnvironmentData)
	assert.False(t, cfg.UploadEnabled())
}

func TestLoadDir_YAMLConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "xray-reporter.yaml", `
projectId: PROJ
outputDir: reports
upload: true
xrayHost: https://jira.example.com
xrayUser: bot
testPlanKey: PROJ-100
revision: abc123
additionalEnvironmentData:
  - staging
  - eu-west
`)

	cfg, err := LoadDir(dir, "")
	require.NoError(t, err)

	assert.Equal(t, "PROJ", cfg.ProjectID)
	assert.Equal(t, "reports", cfg.OutputDir)
	assert.True(t, cfg.Upload)
	assert.Equal(t, "https://jira.example.com", cfg.XrayHost)
	assert.Equal(t, "bot", cfg.XrayUser)
	assert.Equal(t, []string{"staging", "eu-west"}, cfg.AdditionalEnvironmentData)
	assert.True(t, cfg.UploadEnabled())
	assert.False(t, cfg.NotifyEnabled())

	opts := cfg.ReportOptions()
	assert.Equal(t, "PROJ-100", opts.TestPlanKey)
	assert.Equal(t, "abc123", opts.Revision)
	assert.Equal(t, []string{"staging", "eu-west"}, opts.AdditionalEnvironments)
}

func TestLoadDir_ScalarEnvironmentData(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.json", `{"additionalEnvironmentData": "staging"}`)

	cfg, err := LoadDir(dir, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"staging"}, cfg.AdditionalEnvironmentData)
}

func TestLoadDir_EnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "xray-reporter.yaml", "projectId: FILE\nxrayHost: https://file.example.com\n")
	t.Setenv("XRAY_REPORTER_PROJECTID", "ENV")
	t.Setenv("XRAY_REPORTER_UPLOAD", "true")

	cfg, err := LoadDir(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "ENV", cfg.ProjectID)
	assert.Equal(t, "https://file.example.com", cfg.XrayHost)
	assert.True(t, cfg.Upload)
}

func TestLoadDir_DotEnvCredentials(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "XRAY_REPORTER_XRAYPASS=s3cret\nXRAY_REPORTER_SLACKWEBHOOKURL=https://hooks.example.com/x\n")
	t.Cleanup(func() {
		_ = os.Unsetenv("XRAY_REPORTER_XRAYPASS")
		_ = os.Unsetenv("XRAY_REPORTER_SLACKWEBHOOKURL")
	})

	cfg, err := LoadDir(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.XrayPass)
	assert.Equal(t, "https://hooks.example.com/x", cfg.SlackWebhookURL)
	assert.False(t, cfg.NotifyEnabled(), "notification requires upload")
}

func TestLoadDir_MissingExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadDir(dir, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveOutputDir(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "not-a-dir", "x")

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"unset", "", true},
		{"blank", "   ", true},
		{"existing file", file, true},
		{"existing dir", dir, false},
		{"not yet created", filepath.Join(dir, "new", "reports"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{OutputDir: tt.dir}
			got, err := cfg.ResolveOutputDir()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOutputDir)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dir, got)
		})
	}
}

func TestStringList(t *testing.T) {
	assert.Nil(t, stringList(nil))
	assert.Nil(t, stringList(""))
	assert.Equal(t, []string{"a"}, stringList("a"))
	assert.Equal(t, []string{"a", "b"}, stringList([]string{"a", "b"}))
	assert.Equal(t, []string{"a", "3"}, stringList([]interface{}{"a", 3, nil}))
	assert.Equal(t, []string{"42"}, stringList(42))
}
