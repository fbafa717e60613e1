package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"ask", "serve", "queries", "cache"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "secureask", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_DemoFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("demo")
	require.NotNil(t, flag, "root command should have --demo flag")
	assert.Equal(t, "false", flag.DefValue)
}

func TestAskCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"sources", "max-hops", "user", "no-answer", "json"} {
		flag := askCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "ask should have --%s flag", flagName)
	}

	hops := askCmd.Flags().Lookup("max-hops")
	require.NotNil(t, hops)
	assert.Equal(t, "2", hops.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestQueriesCommand_HasSubcommands(t *testing.T) {
	cmds := queriesCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"list", "show", "stats"}
	for _, name := range expected {
		assert.True(t, names[name], "queries should have subcommand %q", name)
	}
}

func TestQueriesListCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"status", "user", "limit"} {
		flag := queriesListCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "queries list should have --%s flag", flagName)
	}

	limit := queriesListCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "50", limit.DefValue)
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	cmds := cacheCmd.Commands()
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	for _, name := range []string{"purge", "stats"} {
		assert.True(t, names[name], "cache should have subcommand %q", name)
	}
}
