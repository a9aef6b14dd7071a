package cmd

import (
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/inference-sim/timestep-sampler/sampler/integrate"
)

var samplersCmd = &cobra.Command{
	Use:   "samplers",
	Short: "List the registered samplers and the optional arguments they accept",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		listSamplers(os.Stdout)
	},
}

func listSamplers(w io.Writer) {
	var data [][]string
	for _, d := range integrate.All() {
		data = append(data, []string{d.Label, strings.Join(d.Aliases, ", "), d.Capabilities.String()})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"NAME", "ALIASES", "ACCEPTS"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}
