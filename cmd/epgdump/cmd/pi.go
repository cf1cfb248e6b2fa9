package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nxtvepg/epgrecv/epgfilter"
)

var (
	piNetwopFlag     int
	piSubstringFlag  string
	piFilterExprFlag string
	piParentalMax    int
)

func init() {
	RootCmd.AddCommand(piCmd)
	piCmd.Flags().IntVar(&piNetwopFlag, "netwop", -1, "restrict to one network index, -1 for all")
	piCmd.Flags().StringVar(&piSubstringFlag, "substring", "", "only titles/infos containing this substring (case-insensitive)")
	piCmd.Flags().StringVar(&piFilterExprFlag, "filter-expr", "", "govaluate boolean expression over PI scalar fields")
	piCmd.Flags().IntVar(&piParentalMax, "parental-max", 0, "maximum parental rating to include, 0 disables the check")
}

func piRun() error {
	controller, err := runCapture(nil)
	if err != nil {
		return err
	}
	db := controller.DB()

	fc := epgfilter.New()
	if piNetwopFlag >= 0 {
		fc.SetNetwop(uint8(piNetwopFlag))
		fc.Enable(epgfilter.AxisNetwop)
	}
	if piSubstringFlag != "" {
		fc.SetSubstring(piSubstringFlag, true)
		fc.Enable(epgfilter.AxisSubstring)
	}
	if piParentalMax > 0 {
		fc.SetParentalRating(uint8(piParentalMax))
		fc.Enable(epgfilter.AxisParentalRating)
	}
	if piFilterExprFlag != "" {
		pred, err := epgfilter.CompileCustomExpression(piFilterExprFlag)
		if err != nil {
			return fmt.Errorf("compiling --filter-expr: %w", err)
		}
		fc.SetCustom(pred)
		fc.Enable(epgfilter.AxisCustom)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(tableColWidth(30))
	table.SetHeader([]string{"netwop", "start", "stop", "rating", "title"})
	for _, pi := range db.AllPI() {
		if !epgfilter.Matches(db, fc, pi) {
			continue
		}
		table.Append([]string{
			db.NetworkName(pi.NetwopIndex),
			time.Unix(pi.StartTime, 0).Format(time.RFC3339),
			time.Unix(pi.StopTime, 0).Format(time.RFC3339),
			fmt.Sprintf("%d", pi.ParentalRating),
			pi.Title,
		})
	}
	table.Render()
	return nil
}

var piCmd = &cobra.Command{
	Use:   "pi",
	Short: "List Programme Information records, optionally filtered",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := piRun(); err != nil {
			log.Fatal(err)
		}
	},
}
