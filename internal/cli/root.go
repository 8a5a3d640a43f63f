package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd builds the countertopctl command tree writing to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "countertopctl",
		Short: "Price and name olive wood countertops from the command line",
		Long: `countertopctl reuses the storefront's pricing and naming rules so
quotes and receipt lines can be reproduced outside the web flow.`,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().String("rates", "", "thickness:rate list, defaults to PRICING_RATES or 3:900,5:1200,7:1500")
	root.AddCommand(newQuoteCmd(), newNameCmd())
	return root
}

// Execute runs the command tree against os.Args.
func Execute() {
	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
