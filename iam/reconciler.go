package iam

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"litexa.dev/litexa/common"
)

const (
	// DefaultFreshnessMinutes is how long a reconciled role is trusted
	// without asking IAM again.
	DefaultFreshnessMinutes = 240

	DefaultInitialDelay      = 10 * time.Second
	DefaultPollInterval      = time.Second
	DefaultReadinessAttempts = 120

	// RoleKeyPrefix namespaces role ARNs in the artifact store and role
	// timestamps in the freshness cache.
	RoleKeyPrefix = "role:"
)

// Readiness controls the wait for a newly created role to become visible.
type Readiness struct {
	InitialDelay time.Duration `mapstructure:"initialDelay"`
	Interval     time.Duration `mapstructure:"interval"`
	// MaxAttempts bounds GetRole polls; zero polls until the context ends.
	MaxAttempts int `mapstructure:"maxAttempts"`
}

// DefaultReadiness returns the standard readiness policy.
func DefaultReadiness() Readiness {
	return Readiness{
		InitialDelay: DefaultInitialDelay,
		Interval:     DefaultPollInterval,
		MaxAttempts:  DefaultReadinessAttempts,
	}
}

// Reconciler converges roles through IAM.
type Reconciler struct {
	Client    IAMClient
	Artifacts common.ArtifactStore
	// Cache is optional; without it every role is reconciled.
	Cache            common.FreshnessCache
	Logger           common.DeployLogger
	FreshnessMinutes int
	Readiness        Readiness
}

// RoleKey is the artifact and cache name for a role.
func RoleKey(name string) string {
	return RoleKeyPrefix + name
}

// Reconcile converges one role and returns the desired descriptor filled in
// with the ARN and what changed. Failures are logged and returned as a
// UserFacingError naming the role.
func (r *Reconciler) Reconcile(ctx context.Context, desired RoleDescriptor) (*RoleDescriptor, error) {
	role := desired
	role.ManagedPolicies = append([]string(nil), desired.ManagedPolicies...)
	logger := r.roleLogger(role.Name)

	err := r.reconcile(ctx, logger, &role, handlers)
	if err != nil {
		logger.Error(err)
		return &role, &common.UserFacingError{
			Message: fmt.Sprintf("failed to fetch info for IAM role %s", role.Name),
			Cause:   err,
		}
	}
	return &role, nil
}

// ReconcileAll converges roles one after another and stops at the first
// failure.
func (r *Reconciler) ReconcileAll(ctx context.Context, roles []RoleDescriptor) ([]*RoleDescriptor, error) {
	results := make([]*RoleDescriptor, 0, len(roles))
	for _, desired := range roles {
		role, err := r.Reconcile(ctx, desired)
		results = append(results, role)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func (r *Reconciler) reconcile(ctx context.Context, logger common.DeployLogger, role *RoleDescriptor, table map[State]handler) error {
	if err := role.Validate(); err != nil {
		return err
	}
	trust, _ := CanonicalPolicy(role.TrustPolicy)

	run := &roleRun{
		r:            r,
		ctx:          ctx,
		logger:       logger,
		role:         role,
		desiredTrust: trust,
	}
	return run.drive(table)
}

type handler func(run *roleRun) (State, error)

var handlers = map[State]handler{
	StateCheckCache:  (*roleRun).checkCache,
	StateSkip:        (*roleRun).skip,
	StateResolve:     (*roleRun).resolve,
	StateCreate:      (*roleRun).create,
	StateFound:       (*roleRun).found,
	StateUpdateTrust: (*roleRun).updateTrust,
	StateAuthorize:   (*roleRun).authorize,
	StateReconcile:   (*roleRun).reconcilePolicies,
	StateAwaitReady:  (*roleRun).awaitReady,
	StateDone:        (*roleRun).done,
}

// roleRun is the state carried between handlers for one role.
type roleRun struct {
	r      *Reconciler
	ctx    context.Context
	logger common.DeployLogger
	role   *RoleDescriptor

	desiredTrust string
	live         *types.Role
	created      *types.Role
}

func (run *roleRun) drive(table map[State]handler) error {
	state := StateCheckCache
	for {
		run.role.Trace = append(run.role.Trace, state)
		h, ok := table[state]
		if !ok {
			return run.fail(state, fmt.Errorf("no handler for state %s", state))
		}
		next, err := h(run)
		if err != nil {
			return run.fail(state, err)
		}
		if state.Terminal() {
			return nil
		}
		if !CanTransition(state, next) {
			return run.fail(state, &TransitionError{From: state, To: next})
		}
		state = next
	}
}

func (run *roleRun) fail(state State, err error) error {
	return &common.RoleReconciliationError{Role: run.role.Name, State: string(state), Err: err}
}

func (run *roleRun) checkCache() (State, error) {
	r := run.r
	if r.Cache == nil || r.Artifacts == nil {
		return StateResolve, nil
	}
	if !r.Cache.IsFresherThan(RoleKey(run.role.Name), run.freshness()) {
		return StateResolve, nil
	}

	var arn string
	found, err := r.Artifacts.Get(RoleKey(run.role.Name), &arn)
	if err != nil {
		return "", err
	}
	if !found || arn == "" {
		run.logger.Verbose("role timestamp is fresh but no ARN is stored, resolving")
		return StateResolve, nil
	}
	run.role.ARN = arn
	run.role.FromCache = true
	return StateSkip, nil
}

func (run *roleRun) skip() (State, error) {
	run.logger.Verbose(fmt.Sprintf("IAM role %s reconciled within the last %d minutes, using %s",
		run.role.Name, run.freshness(), run.role.ARN))
	return "", nil
}

func (run *roleRun) freshness() int {
	if run.r.FreshnessMinutes > 0 {
		return run.r.FreshnessMinutes
	}
	return DefaultFreshnessMinutes
}

func (run *roleRun) resolve() (State, error) {
	out, err := run.r.Client.GetRole(run.ctx, &iam.GetRoleInput{RoleName: aws.String(run.role.Name)})
	if err != nil {
		if !IsNotFound(err) {
			return "", fmt.Errorf("get role: %w", err)
		}
		if run.created != nil {
			// not visible yet; the create response carries the same data
			run.live = run.created
			return StateFound, nil
		}
		return StateCreate, nil
	}
	run.live = out.Role
	return StateFound, nil
}

func (run *roleRun) create() (State, error) {
	run.logger.Log(fmt.Sprintf("creating IAM role %s", run.role.Name))
	input := &iam.CreateRoleInput{
		RoleName:                 aws.String(run.role.Name),
		AssumeRolePolicyDocument: aws.String(run.desiredTrust),
	}
	if run.role.Description != "" {
		input.Description = aws.String(run.role.Description)
	}
	out, err := run.r.Client.CreateRole(run.ctx, input)
	if err != nil {
		return "", fmt.Errorf("create role: %w", err)
	}
	run.created = out.Role
	run.role.WasJustCreated = true
	return StateResolve, nil
}

func (run *roleRun) found() (State, error) {
	if run.live == nil {
		return "", fmt.Errorf("get role returned no role")
	}
	run.role.ARN = aws.ToString(run.live.Arn)
	if TrustPolicyMatches(aws.ToString(run.live.AssumeRolePolicyDocument), run.desiredTrust) {
		return StateAuthorize, nil
	}
	return StateUpdateTrust, nil
}

func (run *roleRun) updateTrust() (State, error) {
	run.logger.Log(fmt.Sprintf("updating trust policy of IAM role %s", run.role.Name))
	_, err := run.r.Client.UpdateAssumeRolePolicy(run.ctx, &iam.UpdateAssumeRolePolicyInput{
		RoleName:       aws.String(run.role.Name),
		PolicyDocument: aws.String(run.desiredTrust),
	})
	if err != nil {
		return "", fmt.Errorf("update assume role policy: %w", err)
	}
	run.role.TrustUpdated = true
	return StateAuthorize, nil
}

func (run *roleRun) authorize() (State, error) {
	var attached []string
	paginator := iam.NewListAttachedRolePoliciesPaginator(run.r.Client, &iam.ListAttachedRolePoliciesInput{
		RoleName: aws.String(run.role.Name),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(run.ctx)
		if err != nil {
			return "", fmt.Errorf("list attached role policies: %w", err)
		}
		for _, p := range page.AttachedPolicies {
			attached = append(attached, aws.ToString(p.PolicyArn))
		}
	}
	run.role.MissingPolicies, run.role.ExtraneousPolicies = PolicyDiff(run.role.ManagedPolicies, attached)
	return StateReconcile, nil
}

func (run *roleRun) reconcilePolicies() (State, error) {
	role := run.role
	if len(role.MissingPolicies)+len(role.ExtraneousPolicies) > 0 {
		run.logger.Log(fmt.Sprintf("reconciling policies for IAM role %s: attaching [%s], detaching [%s]",
			role.Name, policyNames(role.MissingPolicies), policyNames(role.ExtraneousPolicies)))
	}

	g, gctx := errgroup.WithContext(run.ctx)
	for _, arn := range role.MissingPolicies {
		g.Go(func() error {
			_, err := run.r.Client.AttachRolePolicy(gctx, &iam.AttachRolePolicyInput{
				RoleName:  aws.String(role.Name),
				PolicyArn: aws.String(arn),
			})
			if err != nil {
				return fmt.Errorf("attach %s: %w", arn, err)
			}
			return nil
		})
	}
	for _, arn := range role.ExtraneousPolicies {
		g.Go(func() error {
			_, err := run.r.Client.DetachRolePolicy(gctx, &iam.DetachRolePolicyInput{
				RoleName:  aws.String(role.Name),
				PolicyArn: aws.String(arn),
			})
			if err != nil {
				return fmt.Errorf("detach %s: %w", arn, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if role.WasJustCreated {
		return StateAwaitReady, nil
	}
	return StateDone, nil
}

// awaitReady polls GetRole until the new role is visible. Every error counts
// as not ready yet.
func (run *roleRun) awaitReady() (State, error) {
	policy := run.r.Readiness
	if policy.MaxAttempts == 0 {
		run.logger.Warning(fmt.Sprintf("waiting for IAM role %s without an attempt limit", run.role.Name))
	}
	run.logger.Verbose(fmt.Sprintf("waiting for IAM role %s to propagate", run.role.Name))

	if policy.InitialDelay > 0 {
		timer := time.NewTimer(policy.InitialDelay)
		select {
		case <-timer.C:
		case <-run.ctx.Done():
			timer.Stop()
			return "", run.ctx.Err()
		}
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxElapsedTime(0),
	}
	if policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(policy.MaxAttempts)))
	}
	attempts := 0
	_, err := backoff.Retry(run.ctx, func() (*iam.GetRoleOutput, error) {
		attempts++
		return run.r.Client.GetRole(run.ctx, &iam.GetRoleInput{RoleName: aws.String(run.role.Name)})
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("role not ready after %d attempts: %w", attempts, err)
	}
	return StateDone, nil
}

func (run *roleRun) done() (State, error) {
	r := run.r
	if r.Artifacts != nil {
		if err := r.Artifacts.Save(RoleKey(run.role.Name), run.role.ARN); err != nil {
			return "", fmt.Errorf("save role ARN: %w", err)
		}
	}
	if r.Cache != nil {
		if err := r.Cache.SaveTimestamp(RoleKey(run.role.Name)); err != nil {
			return "", fmt.Errorf("save role timestamp: %w", err)
		}
	}
	run.logger.Verbose(fmt.Sprintf("IAM role %s is %s", run.role.Name, run.role.ARN))
	return "", nil
}

// IsNotFound reports whether err is IAM's NoSuchEntity error.
func IsNotFound(err error) bool {
	var notFound *types.NoSuchEntityException
	return errors.As(err, &notFound)
}

func policyNames(arns []string) string {
	names := make([]string, len(arns))
	for i, arn := range arns {
		names[i] = policyName(arn)
	}
	return strings.Join(names, ", ")
}

func (r *Reconciler) roleLogger(name string) common.DeployLogger {
	switch l := r.Logger.(type) {
	case nil:
		return common.DiscardLogger{}
	case *common.ChannelLogger:
		return l.WithField("role", name)
	default:
		return l
	}
}
