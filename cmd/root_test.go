package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	want := []string{"detect", "identity", "chains", "report", "migrate"}

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, names[name], "missing subcommand %s", name)
	}
}

func TestIdentitySubcommands(t *testing.T) {
	subs := make(map[string]bool)
	for _, c := range identityCmd.Commands() {
		subs[c.Name()] = true
	}
	assert.True(t, subs["resolve"])
	assert.True(t, subs["dupes"])
}

func TestReportFlags(t *testing.T) {
	for _, name := range []string{"run", "confidence", "min-score", "limit", "format", "output"} {
		require.NotNil(t, reportCmd.Flags().Lookup(name), "missing flag %s", name)
	}
}
