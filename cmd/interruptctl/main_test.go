package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"},
		{"outbox", "replay"},
		{"outbox", "replay-failed"},
		{"outbox", "purge"},
		{"plan", "set"},
		{"stats"},
	} {
		cmd, rest, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestFlagValidationRunsBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "replay without id", args: []string{"outbox", "replay"}, want: "--id"},
		{name: "plan without user", args: []string{"plan", "set", "--plan", "PRO"}, want: "--user"},
		{name: "stats without pattern", args: []string{"stats", "--user", "1"}, want: "--pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replayID, planUser, statsUser, statsPattern = 0, 0, 0, ""
			rootCmd.SetArgs(append([]string{"--config-dir", t.TempDir()}, tt.args...))
			rootCmd.SetOut(&bytes.Buffer{})
			err := rootCmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
