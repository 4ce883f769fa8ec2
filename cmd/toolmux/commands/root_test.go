package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
)

func TestVersionFlag(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"--version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "toolmux version "+version+"\n", buf.String())
}

func TestSetupLogging_QuietVerboseConflict(t *testing.T) {
	origQuiet, origVerbosity := quiet, verbosity
	quiet, verbosity = true, 1
	defer func() { quiet, verbosity = origQuiet, origVerbosity }()

	err := setupLogging(rootCmd)
	require.Error(t, err)

	var exitErr *muxerrors.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, muxerrors.ExitUser, exitErr.Code)
	assert.Contains(t, exitErr.Suggestion, "--quiet and --verbose")
}
