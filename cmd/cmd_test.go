// cmd/cmd_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["visit"], "visit subcommand should be registered")
	assert.True(t, names["status"], "status subcommand should be registered")
}

func TestVisitCommandFlags(t *testing.T) {
	require.NotNil(t, visitCmd.Flags().Lookup("screenshot"))
	require.NotNil(t, visitCmd.Flags().Lookup("wait-title"))
	require.NotNil(t, visitCmd.Flags().Lookup("wait-total"))
}

func TestRootCommandMetadata(t *testing.T) {
	assert.Equal(t, "gridpilot", rootCmd.Name())
	assert.Equal(t, Version, rootCmd.Version)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}
