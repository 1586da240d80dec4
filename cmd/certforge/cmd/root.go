package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "certforge",
	Version: Version,
	Short:   "certforge builds deterministic PKI fixture trees for test suites",
	Long: `certforge generates a self-contained PKI fixture set: a small CA
hierarchy, a matrix of leaf certificates covering different X.509
extension profiles, an OCSP index and CRLs, written to the fixed
directory layout downstream test suites consume verbatim.`,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
