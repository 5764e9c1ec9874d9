// Package iam converges IAM roles toward a desired trust policy and an exact
// set of attached managed policies.
//
// Reconciliation is an explicit state machine (see fsm.go). Each state does a
// single IAM call or decision and names the next state; the transition table
// rejects any edge it does not declare. A local freshness cache skips the
// whole run for roles reconciled recently.
package iam

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// IAMClient is the subset of the IAM API the reconciler uses.
type IAMClient interface {
	GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error)
	CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error)
	UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error)
	DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error)
}

var (
	_ IAMClient = (*iam.Client)(nil)
	_ IAMClient = (*MockIAMClient)(nil)

	_ iam.ListAttachedRolePoliciesAPIClient = (IAMClient)(nil)
)

// NewIAMClient builds an IAM client from an aws.Config.
func NewIAMClient(cfg aws.Config) *iam.Client {
	return iam.NewFromConfig(cfg)
}
