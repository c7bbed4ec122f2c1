package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixSearch_BareQueryBecomesSearch(t *testing.T) {
	// Given: a root command and args that start with a plain word
	root := NewRootCmd()

	// When: prefixing a bare query
	args := prefixSearch(root, []string{"http", "timeouts"})

	// Then: the search subcommand should be inserted in front
	assert.Equal(t, []string{"search", "http", "timeouts"}, args)
}

func TestPrefixSearch_KnownSubcommandUntouched(t *testing.T) {
	// Given: a root command and args naming a real subcommand
	root := NewRootCmd()

	// When: prefixing
	args := prefixSearch(root, []string{"dirs"})

	// Then: args should pass through unchanged
	assert.Equal(t, []string{"dirs"}, args)
}

func TestPrefixSearch_FlagFirstUntouched(t *testing.T) {
	// Given: a root command and args that start with a flag
	root := NewRootCmd()

	// When: prefixing
	args := prefixSearch(root, []string{"--help"})

	// Then: args should pass through unchanged
	assert.Equal(t, []string{"--help"}, args)
}

func TestPrefixSearch_EmptyArgs(t *testing.T) {
	// Given: a root command and no args
	root := NewRootCmd()

	// When: prefixing
	args := prefixSearch(root, nil)

	// Then: nothing should be inserted
	assert.Empty(t, args)
}

func TestPrefixSearch_HelpWordUntouched(t *testing.T) {
	// Given: a root command and the built-in help word
	root := NewRootCmd()

	// When: prefixing
	args := prefixSearch(root, []string{"help", "index"})

	// Then: args should pass through unchanged
	assert.Equal(t, []string{"help", "index"}, args)
}

func TestRootCmd_VersionFlag(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())

	// Given: a root command with --version
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	// When: executing
	err := cmd.Execute()

	// Then: it should print the version template
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "know version")
}

func TestRootCmd_NoArgsShowsHelp(t *testing.T) {
	t.Setenv("KNOW_HOME", t.TempDir())

	// Given: a root command with no args
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{})

	// When: executing
	err := cmd.Execute()

	// Then: it should print usage help
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Usage:")
	assert.Contains(t, buf.String(), "search")
}
