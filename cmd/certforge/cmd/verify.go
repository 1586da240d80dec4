package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jmcleod/certforge/fixture"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [dir]",
	Short: "Verify a fixture tree against its manifest",
	Long: `Recomputes the digest of every destination path recorded in the
tree's manifest and reports any copy that drifted from its source
artifact. A tree where two copies of the same logical certificate
differ is broken for consumers even when each file parses.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "pki-fixtures"
		if len(args) == 1 {
			root = args[0]
		}
		log := logrus.StandardLogger()

		problems, err := fixture.Verify(root)
		for _, p := range problems {
			log.Error(p)
		}
		if err != nil {
			return err
		}
		log.WithField("root", root).Info("fixture tree matches manifest")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
