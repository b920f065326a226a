package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	testlogger "github.com/scripthost/extmem/internal/testutils/logger"
)

func Test_versionCmd(t *testing.T) {
	out := &testConsoleWriter{}
	consoleWriter = out

	app := New(testlogger.LoggerBuilder(t))
	app.baseCmd.SetArgs([]string{"version", "--home", t.TempDir()})
	require.NoError(t, app.addAndExecuteCommand(context.Background()))

	require.Len(t, out.lines, 1)
	require.True(t, strings.HasPrefix(out.lines[0], "extmem version="), "unexpected output %q", out.lines[0])
	require.Contains(t, out.lines[0], "go=")
}
