package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nxtvepg/epgrecv/ctl"
)

var statsQualityExprFlag string

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsQualityExprFlag, "quality-expr", ctl.DefaultQualityExpr, "govaluate expression deciding degraded quality")
}

func statsRun() error {
	controller, err := runCapture(nil)
	if err != nil {
		return err
	}

	counters := controller.Stats().Get()
	keys := make([]string, 0, len(counters))
	for k := range counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader([]string{"counter", "value"})
	for _, k := range keys {
		table.Append([]string{k, fmt.Sprintf("%d", counters[k])})
	}
	table.Render()

	q, err := ctl.CompileQualityExpr(statsQualityExprFlag)
	if err != nil {
		return fmt.Errorf("compiling --quality-expr: %w", err)
	}
	overflowRate := float64(counters[ctl.CounterRingOverflow])
	degraded, err := q.Eval(controller.CycleStats(), overflowRate)
	if err != nil {
		return fmt.Errorf("evaluating --quality-expr: %w", err)
	}
	if degraded {
		fmt.Println(color.RedString("acquisition quality: degraded"))
	} else {
		fmt.Println(color.GreenString("acquisition quality: ok"))
	}
	return nil
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print acquisition counters and a quality verdict",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := statsRun(); err != nil {
			log.Fatal(err)
		}
	},
}
