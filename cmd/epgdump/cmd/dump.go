package cmd

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nxtvepg/epgrecv/ctl"
	"github.com/nxtvepg/epgrecv/nextview/wire"
)

var dumpLimitFlag int

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().IntVar(&dumpLimitFlag, "limit", 20, "maximum number of blocks to dump, 0 for unlimited")
}

// hexDump renders data as classic hex+ASCII dump lines, the format
// epgtxtdump.c used to trace block bytes during debugging.
func hexDump(data []byte) string {
	const width = 16
	out := ""
	for off := 0; off < len(data); off += width {
		end := off + width
		if end > len(data) {
			end = len(data)
		}
		line := data[off:end]

		hex := ""
		ascii := ""
		for _, b := range line {
			hex += fmt.Sprintf("%02x ", b)
			if b >= 0x20 && b < 0x7f {
				ascii += string(b)
			} else {
				ascii += "."
			}
		}
		out += fmt.Sprintf("%04x  %-48s  %s\n", off, hex, ascii)
	}
	return out
}

func dumpRun() error {
	count := 0
	_, err := runCapture(func(c *ctl.Controller) {
		c.OnBlock = func(blk *wire.Block) {
			if dumpLimitFlag > 0 && count >= dumpLimitFlag {
				return
			}
			count++
			fmt.Printf("--- block %d: type %s, stream %d, ctrl_len %d, version %d ---\n",
				count, wire.TypeName(blk.Type), blk.Stream, blk.CtrlLen, blk.Version)
			fmt.Print(hexDump(blk.Ctrl))
			if len(blk.Text) > 0 {
				fmt.Println("text:")
				fmt.Print(hexDump(blk.Text))
			}
		}
	})
	return err
}

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Hex-dump raw decoded Nextview blocks as they are captured",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := dumpRun(); err != nil {
			log.Fatal(err)
		}
	},
}
