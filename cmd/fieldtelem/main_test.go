package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRootCommand_RequiresExactlyOneHost(t *testing.T) {
	for _, args := range [][]string{{}, {"a", "b"}} {
		cmd := newRootCommand()
		var stderr bytes.Buffer
		cmd.SetOut(&stderr)
		cmd.SetErr(&stderr)
		cmd.SetArgs(args)

		err := cmd.Execute()
		require.Error(t, err, "args=%v", args)
		require.Contains(t, stderr.String(), "Usage:")
	}
}

func TestRootCommand_RejectsBadMode(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--mode", "tunnel", "collector.local"})

	err := cmd.Execute()
	require.EqualError(t, err, "mode must be 'relay' or 'monitor'")
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mode: monitor\nrelay:\n  port: \"7000\"\ngps:\n  poll_timeout: 9s\n"), 0o644))

	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--port", "7001", "--timeout-policy", "fatal_after_timeout"}))

	f := cliFlags{}
	f.configPath, _ = cmd.Flags().GetString("config")
	f.port, _ = cmd.Flags().GetString("port")
	f.timeoutPolicy, _ = cmd.Flags().GetString("timeout-policy")
	f.mode, _ = cmd.Flags().GetString("mode")

	cfg, err := loadConfig(cmd, f)
	require.NoError(t, err)
	require.Equal(t, "monitor", cfg.Mode, "unset flag must not override the file")
	require.Equal(t, "7001", cfg.Relay.Port)
	require.Equal(t, 9*time.Second, cfg.GPS.PollTimeout)
	require.Equal(t, "fatal_after_timeout", cfg.GPS.TimeoutPolicy)
}
