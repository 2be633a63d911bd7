package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	emailsPath     string
	restrictedPath string
	concurrency    int
	sample         int
	seed           int64
	chainDir       string
)

var rootCmd = &cobra.Command{
	Use:   "harvest [doi-list]",
	Short: "Resolve DOIs to open-access documents and harvest contact emails",
	Long: `harvest resolves each DOI in the given list against an open-access
metadata service, downloads the best available PDF, and appends every
email address found in the document text to a CSV record stream.

The input file holds one DOI per line; blank lines and lines starting
with '#' are ignored.`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&emailsPath, "emails", "", "output CSV for extracted emails")
	rootCmd.Flags().StringVar(&restrictedPath, "restricted", "", "output CSV for restricted-publisher URLs")
	rootCmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum items in flight")
	rootCmd.Flags().IntVar(&sample, "sample", 0, "process only the first N shuffled items")
	rootCmd.Flags().Int64Var(&seed, "seed", 0, "shuffle seed")
	rootCmd.Flags().StringVar(&chainDir, "chain-dir", "", "directory for escalated certificate chains")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
