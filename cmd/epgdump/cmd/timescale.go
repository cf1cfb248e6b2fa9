package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(timescaleCmd)
}

func timescaleRun() error {
	controller, err := runCapture(nil)
	if err != nil {
		return err
	}
	tsq := controller.Timescale()

	if !tsq.HasElems() {
		fmt.Println("no timescale coverage buffered")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader([]string{"provider", "mode", "netwop", "start", "duration(min)", "runs", "flags"})
	for buf := tsq.PopOldest(); buf != nil; buf = tsq.PopOldest() {
		mode := "initial"
		if buf.Mode != 0 {
			mode = "incremental"
		}
		base := time.Unix(buf.BaseTime, 0)
		for _, e := range buf.Elems {
			start := base.Add(time.Duration(e.StartOffMins) * time.Minute)
			table.Append([]string{
				fmt.Sprintf("0x%04x", buf.ProvCNI),
				mode,
				fmt.Sprintf("%d", e.Netwop),
				start.Format(time.RFC3339),
				fmt.Sprintf("%d", e.DurationMins),
				fmt.Sprintf("%d", e.ConcatCount),
				fmt.Sprintf("0x%02x", e.Flags),
			})
		}
	}
	table.Render()
	return nil
}

var timescaleCmd = &cobra.Command{
	Use:   "timescale",
	Short: "Print the buffered timescale coverage queue",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := timescaleRun(); err != nil {
			log.Fatal(err)
		}
	},
}
