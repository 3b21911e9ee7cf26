package commands

import (
	"bytes"
	"testing"

	"github.com/moolen/ferry/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionFlag(t *testing.T) {
	for _, flag := range []string{"-v", "--version"} {
		t.Run(flag, func(t *testing.T) {
			out, err := execute(t, flag)
			require.NoError(t, err)
			assert.Contains(t, out, Version)
		})
	}
}

func TestConfigFlagPrintsVariables(t *testing.T) {
	for _, flag := range []string{"-c", "--config"} {
		t.Run(flag, func(t *testing.T) {
			out, err := execute(t, flag)
			require.NoError(t, err)
			assert.Contains(t, out, "Application environment variables:")
			assert.Contains(t, out, config.MarkdownTable())
		})
	}
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "SUCCESS")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUCCESS")
}

func TestInvalidConfiguration(t *testing.T) {
	t.Setenv("DB_POOL_MIN_SIZE", "50")
	_, err := execute(t, "--log-level", "error")
	require.Error(t, err)

	var cfgErr *config.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "DB_POOL_MIN_SIZE")
}

func TestRejectsPositionalArguments(t *testing.T) {
	_, err := execute(t, "serve")
	assert.Error(t, err)
}

func TestParseLogLevelFlags(t *testing.T) {
	tests := []struct {
		name         string
		env          map[string]string
		flags        []string
		wantDefault  string
		wantPackages map[string]string
		wantErr      bool
	}{
		{
			name:         "plain level",
			flags:        []string{"debug"},
			wantDefault:  "debug",
			wantPackages: map[string]string{},
		},
		{
			name:         "explicit default and package",
			flags:        []string{"default=warn", "broker.consumer=debug"},
			wantDefault:  "warn",
			wantPackages: map[string]string{"broker.consumer": "debug"},
		},
		{
			name:         "python style names",
			flags:        []string{"WARNING", "database=CRITICAL"},
			wantDefault:  "WARNING",
			wantPackages: map[string]string{"database": "CRITICAL"},
		},
		{
			name:         "environment",
			env:          map[string]string{"LOG_LEVEL_LIFECYCLE_ORCHESTRATOR": "debug"},
			flags:        []string{"info"},
			wantDefault:  "info",
			wantPackages: map[string]string{"lifecycle.orchestrator": "debug"},
		},
		{
			name:         "flag overrides environment",
			env:          map[string]string{"LOG_LEVEL_DATABASE": "debug"},
			flags:        []string{"database=error"},
			wantDefault:  "info",
			wantPackages: map[string]string{"database": "error"},
		},
		{
			name:    "invalid package level",
			flags:   []string{"broker=loud"},
			wantErr: true,
		},
		{
			name:    "invalid default",
			flags:   []string{"SUCCESS"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			def, pkgs, err := parseLogLevelFlags(tt.flags)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDefault, def)
			assert.Equal(t, tt.wantPackages, pkgs)
		})
	}
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "broker.consumer", convertEnvKeyToPackageName("LOG_LEVEL_BROKER_CONSUMER"))
	assert.Equal(t, "database", convertEnvKeyToPackageName("LOG_LEVEL_DATABASE"))
}
