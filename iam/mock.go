package iam

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
)

// MockIAMClient is an in-memory IAMClient for tests. Trust policies are
// returned URL-encoded the way IAM returns them.
type MockIAMClient struct {
	mu sync.Mutex

	// Roles maps role name to role state
	Roles map[string]*MockRole
	// AccountID is used to build role ARNs
	AccountID string
	// PageSize caps ListAttachedRolePolicies pages, 100 when zero
	PageSize int

	// GetRoleErr is returned by GetRole when set
	GetRoleErr error
	// InvisibleGets makes GetRole report NoSuchEntity this many times after a
	// role is created, simulating propagation delay
	InvisibleGets int
	// AttachErr is returned by AttachRolePolicy when set
	AttachErr error

	// Call counters
	GetRoleCalls                  int
	CreateRoleCalls               int
	UpdateAssumeRolePolicyCalls   int
	ListAttachedRolePoliciesCalls int
	AttachRolePolicyCalls         int
	DetachRolePolicyCalls         int

	// Attached and Detached record policy ARNs in call order
	Attached []string
	Detached []string

	invisible map[string]int
}

// MockRole is the stored state of a mock role.
type MockRole struct {
	Name        string
	Arn         string
	Description string
	TrustPolicy string
	Policies    []string
}

// NewMockIAMClient creates an empty mock.
func NewMockIAMClient() *MockIAMClient {
	return &MockIAMClient{
		Roles:     make(map[string]*MockRole),
		AccountID: "123456789012",
		invisible: make(map[string]int),
	}
}

// AddRole seeds an existing role.
func (m *MockIAMClient) AddRole(name, trustPolicy string, policies ...string) *MockRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	role := &MockRole{Name: name, Arn: m.arn(name), TrustPolicy: trustPolicy, Policies: append([]string(nil), policies...)}
	m.Roles[name] = role
	return role
}

// Role returns a copy of a stored role or nil.
func (m *MockIAMClient) Role(name string) *MockRole {
	m.mu.Lock()
	defer m.mu.Unlock()
	role, ok := m.Roles[name]
	if !ok {
		return nil
	}
	cp := *role
	cp.Policies = append([]string(nil), role.Policies...)
	sort.Strings(cp.Policies)
	return &cp
}

// ResetCounters zeroes call counters and recorded policy changes.
func (m *MockIAMClient) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRoleCalls = 0
	m.CreateRoleCalls = 0
	m.UpdateAssumeRolePolicyCalls = 0
	m.ListAttachedRolePoliciesCalls = 0
	m.AttachRolePolicyCalls = 0
	m.DetachRolePolicyCalls = 0
	m.Attached = nil
	m.Detached = nil
}

func (m *MockIAMClient) arn(name string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", m.AccountID, name)
}

func noSuchEntity(name string) error {
	return &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("The role with name %s cannot be found.", name))}
}

// GetRole mocks role lookup
func (m *MockIAMClient) GetRole(ctx context.Context, params *iam.GetRoleInput, optFns ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRoleCalls++

	if m.GetRoleErr != nil {
		return nil, m.GetRoleErr
	}
	name := aws.ToString(params.RoleName)
	role, ok := m.Roles[name]
	if !ok {
		return nil, noSuchEntity(name)
	}
	if m.invisible[name] > 0 {
		m.invisible[name]--
		return nil, noSuchEntity(name)
	}
	return &iam.GetRoleOutput{Role: m.toRole(role)}, nil
}

func (m *MockIAMClient) toRole(role *MockRole) *types.Role {
	return &types.Role{
		RoleName:                 aws.String(role.Name),
		Arn:                      aws.String(role.Arn),
		Description:              aws.String(role.Description),
		AssumeRolePolicyDocument: aws.String(url.PathEscape(role.TrustPolicy)),
	}
}

// CreateRole mocks role creation
func (m *MockIAMClient) CreateRole(ctx context.Context, params *iam.CreateRoleInput, optFns ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateRoleCalls++

	name := aws.ToString(params.RoleName)
	if _, ok := m.Roles[name]; ok {
		return nil, &types.EntityAlreadyExistsException{Message: aws.String("Role with name " + name + " already exists.")}
	}
	role := &MockRole{
		Name:        name,
		Arn:         m.arn(name),
		Description: aws.ToString(params.Description),
		TrustPolicy: aws.ToString(params.AssumeRolePolicyDocument),
	}
	m.Roles[name] = role
	m.invisible[name] = m.InvisibleGets
	return &iam.CreateRoleOutput{Role: m.toRole(role)}, nil
}

// UpdateAssumeRolePolicy mocks replacing a trust policy
func (m *MockIAMClient) UpdateAssumeRolePolicy(ctx context.Context, params *iam.UpdateAssumeRolePolicyInput, optFns ...func(*iam.Options)) (*iam.UpdateAssumeRolePolicyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateAssumeRolePolicyCalls++

	name := aws.ToString(params.RoleName)
	role, ok := m.Roles[name]
	if !ok {
		return nil, noSuchEntity(name)
	}
	role.TrustPolicy = aws.ToString(params.PolicyDocument)
	return &iam.UpdateAssumeRolePolicyOutput{}, nil
}

// ListAttachedRolePolicies mocks listing attached policies. The marker is the
// index of the next policy.
func (m *MockIAMClient) ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListAttachedRolePoliciesCalls++

	name := aws.ToString(params.RoleName)
	role, ok := m.Roles[name]
	if !ok {
		return nil, noSuchEntity(name)
	}

	policies := append([]string(nil), role.Policies...)
	sort.Strings(policies)

	start := 0
	if marker := aws.ToString(params.Marker); marker != "" {
		n, err := strconv.Atoi(marker)
		if err != nil || n < 0 || n > len(policies) {
			return nil, fmt.Errorf("invalid marker %q", marker)
		}
		start = n
	}
	size := m.PageSize
	if size <= 0 {
		size = 100
	}
	if params.MaxItems != nil && int(*params.MaxItems) < size {
		size = int(*params.MaxItems)
	}
	end := start + size
	if end > len(policies) {
		end = len(policies)
	}

	out := &iam.ListAttachedRolePoliciesOutput{}
	for _, arn := range policies[start:end] {
		out.AttachedPolicies = append(out.AttachedPolicies, types.AttachedPolicy{
			PolicyArn:  aws.String(arn),
			PolicyName: aws.String(policyName(arn)),
		})
	}
	if end < len(policies) {
		out.IsTruncated = true
		out.Marker = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

// AttachRolePolicy mocks attaching a managed policy
func (m *MockIAMClient) AttachRolePolicy(ctx context.Context, params *iam.AttachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.AttachRolePolicyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AttachRolePolicyCalls++

	if m.AttachErr != nil {
		return nil, m.AttachErr
	}
	name := aws.ToString(params.RoleName)
	role, ok := m.Roles[name]
	if !ok {
		return nil, noSuchEntity(name)
	}
	arn := aws.ToString(params.PolicyArn)
	for _, p := range role.Policies {
		if p == arn {
			return &iam.AttachRolePolicyOutput{}, nil
		}
	}
	role.Policies = append(role.Policies, arn)
	m.Attached = append(m.Attached, arn)
	return &iam.AttachRolePolicyOutput{}, nil
}

// DetachRolePolicy mocks detaching a managed policy
func (m *MockIAMClient) DetachRolePolicy(ctx context.Context, params *iam.DetachRolePolicyInput, optFns ...func(*iam.Options)) (*iam.DetachRolePolicyOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DetachRolePolicyCalls++

	name := aws.ToString(params.RoleName)
	role, ok := m.Roles[name]
	if !ok {
		return nil, noSuchEntity(name)
	}
	arn := aws.ToString(params.PolicyArn)
	for i, p := range role.Policies {
		if p == arn {
			role.Policies = append(role.Policies[:i], role.Policies[i+1:]...)
			m.Detached = append(m.Detached, arn)
			return &iam.DetachRolePolicyOutput{}, nil
		}
	}
	return nil, &types.NoSuchEntityException{Message: aws.String("Policy " + arn + " was not found.")}
}
