package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"litexa.dev/litexa/assets"
	"litexa.dev/litexa/common"
	"litexa.dev/litexa/config"
	"litexa.dev/litexa/db/bolt"
	"litexa.dev/litexa/deploy"
	"litexa.dev/litexa/iam"
)

func newDeployCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "deploy assets and roles for the configured variant",
		Long: `Deploy runs the asset deployment followed by the IAM role
reconciliation. Either stage can be run alone with its subcommand.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withDeployment(cmd, func(ctx context.Context, run *deploymentRun) error {
				if err := run.assets(ctx); err != nil {
					return err
				}
				return run.roles(ctx, nil)
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "assets",
			Short: "upload changed assets to the S3 bucket",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDeployment(cmd, func(ctx context.Context, run *deploymentRun) error {
					return run.assets(ctx)
				})
			},
		},
		&cobra.Command{
			Use:   "role [NAME...]",
			Short: "converge IAM roles, optionally only the named ones",
			RunE: func(cmd *cobra.Command, args []string) error {
				return opts.withDeployment(cmd, func(ctx context.Context, run *deploymentRun) error {
					return run.roles(ctx, args)
				})
			},
		},
	)
	return cmd
}

// deploymentRun carries what the deploy stages share within one invocation.
type deploymentRun struct {
	cfg     *config.DeploymentConfig
	store   *bolt.StateStore
	clients *clients
	out     io.Writer
}

func (o *rootOptions) withDeployment(cmd *cobra.Command, fn func(context.Context, *deploymentRun) error) error {
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bolt.OpenStateStore(cfg.StatePath(), common.NewChannelLogger(nil, "state"))
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := newClients(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create AWS clients: %w", err)
	}

	return fn(ctx, &deploymentRun{cfg: cfg, store: store, clients: c, out: cmd.OutOrStdout()})
}

func (r *deploymentRun) assets(ctx context.Context) error {
	if err := r.cfg.ValidateAssets(); err != nil {
		return err
	}
	languages, err := assets.ScanProject(r.cfg.Layout())
	if err != nil {
		return fmt.Errorf("failed to scan project assets: %w", err)
	}

	deployer := &deploy.Deployer{
		Client:    r.clients.S3,
		Large:     r.clients.Large,
		Artifacts: r.store,
		Cache:     r.store,
		Logger:    common.NewChannelLogger(nil, "assets"),
	}
	result, err := deployer.DeployAssets(ctx, r.cfg.AssetDeployment(languages))
	if err != nil {
		return err
	}

	fmt.Fprintf(r.out, "assets root: %s\n", result.AssetsRoot)
	fmt.Fprintf(r.out, "uploaded %d of %d assets (%s)\n",
		result.Uploads.Objects, len(result.Discovery.Candidates), humanize.Bytes(uint64(result.Uploads.Bytes)))
	return nil
}

func (r *deploymentRun) roles(ctx context.Context, only []string) error {
	roles, err := r.cfg.RoleDescriptors()
	if err != nil {
		return err
	}
	if len(only) > 0 {
		if roles, err = selectRoles(roles, only); err != nil {
			return err
		}
	}

	reconciler := &iam.Reconciler{
		Client:           r.clients.IAM,
		Artifacts:        r.store,
		Cache:            r.store,
		Logger:           common.NewChannelLogger(nil, "iam"),
		FreshnessMinutes: r.cfg.RoleFreshnessMinutes,
		Readiness:        r.cfg.ReadinessPolicy(),
	}
	results, err := reconciler.ReconcileAll(ctx, roles)
	if err != nil && len(results) > 0 {
		results = results[:len(results)-1]
	}
	for _, role := range results {
		if role.ARN == "" {
			continue
		}
		status := "up to date"
		switch {
		case role.FromCache:
			status = "cached"
		case role.WasJustCreated:
			status = "created"
		case role.TrustUpdated || len(role.MissingPolicies) > 0 || len(role.ExtraneousPolicies) > 0:
			status = "updated"
		}
		fmt.Fprintf(r.out, "role %s: %s (%s)\n", role.Name, role.ARN, status)
	}
	return err
}

// selectRoles keeps the configured roles named in only, in configuration order.
func selectRoles(roles []iam.RoleDescriptor, only []string) ([]iam.RoleDescriptor, error) {
	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		wanted[name] = true
	}
	var selected []iam.RoleDescriptor
	for _, role := range roles {
		if wanted[role.Name] {
			selected = append(selected, role)
			delete(wanted, role.Name)
		}
	}
	for _, name := range only {
		if wanted[name] {
			return nil, common.NewConfigurationError("role", name, "is not configured")
		}
	}
	return selected, nil
}
