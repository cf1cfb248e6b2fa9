package cmd

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// RootCmd is epgdump's entry point; exported so a subcommand can be
// registered from anywhere in this package.
var RootCmd = &cobra.Command{
	Use:   "epgdump",
	Short: "Inspect a Nextview EPG acquisition: capture, decode, and print",
}

var (
	deviceFlag  string
	epgPageFlag string
	durationFlag time.Duration
	verboseFlag bool
)

func init() {
	RootCmd.PersistentFlags().StringVarP(&deviceFlag, "device", "d", "/dev/vbi0", "path to the VBI capture device")
	RootCmd.PersistentFlags().StringVar(&epgPageFlag, "epgpage", "", "Nextview EPG carrier page number in hex, e.g. 1DF")
	RootCmd.PersistentFlags().DurationVar(&durationFlag, "duration", 10*time.Second, "how long to capture before printing")
	RootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output")
}

// ConfigureVerbosity sets the log level from the persistent -v flag.
// Every subcommand's Run must call this, matching cmd/ntpcheck's
// convention.
func ConfigureVerbosity() {
	log.SetLevel(log.InfoLevel)
	if verboseFlag {
		log.SetLevel(log.DebugLevel)
	}
}

// tableColWidth picks a column width for tablewriter.SetColWidth that
// keeps wide listings (pi's title column especially) from wrapping
// past the actual terminal width when stdout is a tty; non-tty output
// (piped to a file, CI logs) falls back to a fixed default.
func tableColWidth(defaultWidth int) int {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// Execute is the CLI's main entry point.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
