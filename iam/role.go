package iam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"litexa.dev/litexa/common"
)

// LambdaTrustPolicy lets the Lambda service assume a role.
const LambdaTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Effect": "Allow",
      "Principal": {"Service": "lambda.amazonaws.com"},
      "Action": "sts:AssumeRole"
    }
  ]
}`

// LambdaBasicExecutionPolicy grants a skill handler permission to write logs.
const LambdaBasicExecutionPolicy = "arn:aws:iam::aws:policy/service-role/AWSLambdaBasicExecutionRole"

var roleNamePattern = regexp.MustCompile(`^[\w+=,.@-]{1,64}$`)

// RoleDescriptor is the desired state of one role plus what reconciliation
// found and changed.
type RoleDescriptor struct {
	Name            string   `mapstructure:"name" yaml:"name"`
	Description     string   `mapstructure:"description" yaml:"description,omitempty"`
	TrustPolicy     string   `mapstructure:"trustPolicy" yaml:"trustPolicy"`
	ManagedPolicies []string `mapstructure:"managedPolicies" yaml:"managedPolicies"`

	ARN                string   `mapstructure:"-" yaml:"-"`
	MissingPolicies    []string `mapstructure:"-" yaml:"-"`
	ExtraneousPolicies []string `mapstructure:"-" yaml:"-"`
	WasJustCreated     bool     `mapstructure:"-" yaml:"-"`
	TrustUpdated       bool     `mapstructure:"-" yaml:"-"`
	// FromCache is set when a fresh cache entry short-circuited the run.
	FromCache bool `mapstructure:"-" yaml:"-"`
	// Trace lists the states visited, in order.
	Trace []State `mapstructure:"-" yaml:"-"`
}

// DefaultLambdaRole is the execution role a litexa skill handler runs as.
func DefaultLambdaRole(name string) RoleDescriptor {
	return RoleDescriptor{
		Name:            name,
		Description:     "Execution role for litexa skill handlers",
		TrustPolicy:     LambdaTrustPolicy,
		ManagedPolicies: []string{LambdaBasicExecutionPolicy},
	}
}

// Validate checks the desired fields before any IAM call.
func (d RoleDescriptor) Validate() error {
	if !roleNamePattern.MatchString(d.Name) {
		return common.NewConfigurationError("role name", d.Name, "must be 1 to 64 characters of letters, digits and +=,.@_-")
	}
	if _, err := CanonicalPolicy(d.TrustPolicy); err != nil {
		return common.NewConfigurationError("trustPolicy", d.Name, err.Error())
	}
	seen := make(map[string]bool)
	for _, arn := range d.ManagedPolicies {
		if !strings.HasPrefix(arn, "arn:") {
			return common.NewConfigurationError("managedPolicies", arn, "is not a policy ARN")
		}
		if seen[arn] {
			return common.NewConfigurationError("managedPolicies", arn, "is listed twice")
		}
		seen[arn] = true
	}
	return nil
}

// CanonicalPolicy re-encodes a JSON policy document with sorted keys and no
// insignificant whitespace.
func CanonicalPolicy(doc string) (string, error) {
	if strings.TrimSpace(doc) == "" {
		return "", fmt.Errorf("policy document is empty")
	}
	dec := json.NewDecoder(strings.NewReader(doc))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("policy document is not valid JSON: %w", err)
	}
	if dec.More() {
		return "", fmt.Errorf("policy document has trailing data")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// DecodeLivePolicy undoes the RFC 3986 percent-encoding IAM applies to
// policy documents. A literal '+' stays a '+'.
func DecodeLivePolicy(raw string) string {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// TrustPolicyMatches compares a live, URL-encoded trust policy with a desired
// canonical one.
func TrustPolicyMatches(live, desiredCanonical string) bool {
	decoded := DecodeLivePolicy(live)
	canonical, err := CanonicalPolicy(decoded)
	if err != nil {
		return decoded == desiredCanonical
	}
	return canonical == desiredCanonical
}

// PolicyDiff returns the desired policies not attached and the attached
// policies not desired, each in input order.
func PolicyDiff(desired, attached []string) (missing, extraneous []string) {
	want := make(map[string]bool, len(desired))
	for _, arn := range desired {
		want[arn] = true
	}
	have := make(map[string]bool, len(attached))
	for _, arn := range attached {
		have[arn] = true
		if !want[arn] {
			extraneous = append(extraneous, arn)
		}
	}
	for _, arn := range desired {
		if !have[arn] {
			missing = append(missing, arn)
		}
	}
	return missing, extraneous
}

func policyName(arn string) string {
	if i := strings.LastIndex(arn, "/"); i >= 0 {
		return arn[i+1:]
	}
	return arn
}
