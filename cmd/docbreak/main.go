// Command docbreak runs the document pipeline from a terminal: extraction,
// offset resolution, model diagnostics and one-shot breakdowns.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	colorRed    = color.New(color.FgRed, color.Bold)
	colorGreen  = color.New(color.FgGreen, color.Bold)
	colorYellow = color.New(color.FgYellow)
	colorCyan   = color.New(color.FgCyan)
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		colorRed.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "docbreak",
		Short:         "Structured document breakdowns with traceable sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "", "override LOG_LEVEL")
	root.AddCommand(
		newExtractCmd(),
		newResolveCmd(),
		newProcessCmd(),
		newModelsCmd(),
		newCheckCmd(),
	)
	return root
}

func printSeparator() {
	fmt.Println("------------------------------------------------------------")
}
