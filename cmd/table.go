package cmd

import (
	"encoding/hex"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gregLibert/cardemu/pkg/apdutable"
	"github.com/gregLibert/cardemu/pkg/iso7816"
	"github.com/gregLibert/cardemu/pkg/resolver"
)

var tableCmd = &cobra.Command{
	Use:   "table [file]",
	Short: "List the definitions of a command/response table and how each is answered",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			table *apdutable.Table
			err   error
		)
		if len(args) == 1 {
			table, err = apdutable.Load(args[0])
		} else {
			table, err = loadTable()
		}
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tINS\tCASE\tCOMMAND\tRESPONSE\tSTATUS")
		for i, e := range table.Entries() {
			ins, ok := iso7816.ParseInsCode(e.Command)
			insHex, label := "??", resolver.LabelInstructionUnsupported
			if ok {
				insHex, label = ins.Hex(), resolver.Label(ins)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, insHex, label, e.Command, e.Response, responseStatus(e.Response))
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d entries\n", table.Len())
		return nil
	},
}

// responseStatus describes the status word that ends a response, or why there is none.
func responseStatus(responseHex string) string {
	raw, err := hex.DecodeString(responseHex)
	if err != nil {
		return "invalid hex"
	}
	sw, ok := iso7816.ResponseStatus(raw)
	if !ok {
		return "no status word"
	}
	return sw.Verbose()
}

func init() {
	rootCmd.AddCommand(tableCmd)
}
