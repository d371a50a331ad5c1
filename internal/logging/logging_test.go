package logging

import (
	"bytes"
	"strings"
	"testing"

	clog "github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

// TestLoggingHelpers_WriteToBuffer swaps L for a buffer-backed logger and
// restores it afterwards.
func TestLoggingHelpers_WriteToBuffer(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	require.NoError(t, Setup("debug", nil))

	Debugf("hello %s", "dbg")
	Infof("info %d", 1)
	Warnf("warn")
	Errorf("err %v", "E")
	L.Info("structured", "records", 3)

	out := buf.String()
	for _, want := range []string{"hello dbg", "info 1", "warn", "err E", "records=3"} {
		require.True(t, strings.Contains(out, want), "missing %q in %s", want, out)
	}
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	prev := L
	L = clog.New(&buf)
	defer func() { L = prev }()

	require.NoError(t, Setup("error", nil))
	Infof("quiet")
	Errorf("loud")

	require.NotContains(t, buf.String(), "quiet")
	require.Contains(t, buf.String(), "loud")

	require.Error(t, Setup("chatty", nil))
}
