package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(aiCmd)
}

func aiRun() error {
	controller, err := runCapture(nil)
	if err != nil {
		return err
	}

	ai := controller.DB().GetAI()
	if ai == nil {
		fmt.Println(color.YellowString("no AI block received during capture window"))
		return nil
	}

	fmt.Printf("provider %s, CNI 0x%04x, versions %d/%d, %d networks\n",
		color.GreenString(ai.ServiceName), ai.CNI, ai.Version1, ai.Version2, ai.NetwopCount)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetColWidth(20)
	table.SetHeader([]string{"netwop", "cni", "name", "lto(min)", "days", "pi range", "swo range", "alphabet"})
	for i, nw := range ai.Netwops {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("0x%04x", nw.CNI),
			nw.Name,
			fmt.Sprintf("%d", nw.LTO),
			fmt.Sprintf("%d", nw.DayCount),
			fmt.Sprintf("%d-%d", nw.StartNo, nw.StopNo),
			fmt.Sprintf("%d-%d", nw.StartNoSwo, nw.StopNoSwo),
			fmt.Sprintf("%d", nw.AlphabetGroup),
		})
	}
	table.Render()
	return nil
}

var aiCmd = &cobra.Command{
	Use:   "ai",
	Short: "Print the provider's Application Information block",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if err := aiRun(); err != nil {
			log.Fatal(err)
		}
	},
}
