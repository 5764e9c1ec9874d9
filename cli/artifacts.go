package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"litexa.dev/litexa/common"
	"litexa.dev/litexa/db/bolt"
)

func newArtifactsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "print the stored deployment artifacts as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			return store.ExportYAML(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "rm NAME...",
		Short: "forget stored artifacts so the next deployment recomputes them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, name := range args {
				if err := store.Delete(name); err != nil {
					return fmt.Errorf("failed to delete artifact %s: %w", name, err)
				}
			}
			return nil
		},
	})
	return cmd
}

func (o *rootOptions) openStore(cmd *cobra.Command) (*bolt.StateStore, error) {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return bolt.OpenStateStore(cfg.StatePath(), common.NewChannelLogger(nil, "state"))
}
