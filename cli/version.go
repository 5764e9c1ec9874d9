package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"litexa.dev/litexa/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print the litexa version and the AWS SDK modules it deploys with",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			info := version.Get()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}

			fmt.Fprintln(out, info)
			for _, c := range info.AWS {
				fmt.Fprintf(out, "  %-10s %s\n", c.Name, c.Version)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print version information as JSON")
	return cmd
}
