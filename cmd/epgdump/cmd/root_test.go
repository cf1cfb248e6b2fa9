package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableColWidthFallsBackToDefaultWhenNotATerminal(t *testing.T) {
	// go test's stdout is never a tty, so this exercises the non-tty
	// branch the same way a piped or CI invocation of epgdump would.
	require.Equal(t, 42, tableColWidth(42))
}
