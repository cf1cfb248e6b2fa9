// Command epgdump is a standalone inspection tool for the Nextview
// acquisition pipeline: it captures from a VBI device for a bounded
// window, then prints whatever view the subcommand asked for (the
// current AI, a filtered PI listing, timescale coverage, acquisition
// counters, or a raw block hex dump), the way the original's
// epgtxtdump / nxtvepg --dump mode worked as a standalone tool rather
// than a client of a separate daemon.
package main

import "github.com/nxtvepg/epgrecv/cmd/epgdump/cmd"

func main() {
	cmd.Execute()
}
