// File: cmd/cmd_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandWiring(t *testing.T) {
	assert.Equal(t, "coursepilot", rootCmd.Use)
	require.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))

	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"], "run command must be registered")
	assert.True(t, names["courses"], "courses command must be registered")
}

func TestRunCommandFlags(t *testing.T) {
	runCmd := newRunCmd()

	for _, name := range []string{
		"provider", "model", "endpoint", "api-key", "headless", "screenshot-dir",
		"debug", "max-iterations", "iteration-delay", "auto-login",
	} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "missing flag %q", name)
	}

	maxIter, err := runCmd.Flags().GetInt("max-iterations")
	require.NoError(t, err)
	assert.Equal(t, 200, maxIter)
}

func TestRunCommandRequiresURL(t *testing.T) {
	runCmd := newRunCmd()

	assert.Error(t, runCmd.Args(runCmd, []string{}))
	assert.NoError(t, runCmd.Args(runCmd, []string{"https://example.com"}))
	assert.Error(t, runCmd.Args(runCmd, []string{"a", "b"}))
}

func TestCoursesCommandFlags(t *testing.T) {
	coursesCmd := newCoursesCmd()

	for _, name := range []string{"provider", "model", "headless", "max-iterations", "select", "auto-login"} {
		assert.NotNil(t, coursesCmd.Flags().Lookup(name), "missing flag %q", name)
	}
}
