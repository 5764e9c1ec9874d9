package iam

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	declared := [][2]State{
		{StateCheckCache, StateSkip},
		{StateCheckCache, StateResolve},
		{StateResolve, StateFound},
		{StateResolve, StateCreate},
		{StateCreate, StateResolve},
		{StateFound, StateUpdateTrust},
		{StateFound, StateAuthorize},
		{StateUpdateTrust, StateAuthorize},
		{StateAuthorize, StateReconcile},
		{StateReconcile, StateAwaitReady},
		{StateReconcile, StateDone},
		{StateAwaitReady, StateDone},
	}
	for _, edge := range declared {
		assert.True(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}

	undeclared := [][2]State{
		{StateCheckCache, StateDone},
		{StateCreate, StateFound},
		{StateFound, StateReconcile},
		{StateAuthorize, StateDone},
		{StateDone, StateCheckCache},
		{StateSkip, StateResolve},
	}
	for _, edge := range undeclared {
		assert.False(t, CanTransition(edge[0], edge[1]), "%s -> %s", edge[0], edge[1])
	}
}

func TestEveryStateHasHandler(t *testing.T) {
	for from, next := range transitions {
		assert.Contains(t, handlers, from)
		for _, to := range next {
			assert.Contains(t, handlers, to)
		}
	}
	assert.True(t, StateSkip.Terminal())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateAwaitReady.Terminal())
}

func TestCanonicalPolicy(t *testing.T) {
	a, err := CanonicalPolicy(`{"Version": "2012-10-17", "Statement": [{"Action": "sts:AssumeRole", "Effect": "Allow"}]}`)
	require.NoError(t, err)
	b, err := CanonicalPolicy("{\n  \"Statement\":[{\"Effect\":\"Allow\",\"Action\":\"sts:AssumeRole\"}],\n  \"Version\":\"2012-10-17\"\n}")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, `{"Statement":[{"Action":"sts:AssumeRole","Effect":"Allow"}],"Version":"2012-10-17"}`, a)

	_, err = CanonicalPolicy(`{"a":1} {"b":2}`)
	assert.Error(t, err)
}

func TestTrustPolicyMatches(t *testing.T) {
	desired := mustCanonical(t, LambdaTrustPolicy)
	encoded := "%7B%22Version%22%3A%222012-10-17%22%2C%22Statement%22%3A%5B%7B%22Effect%22%3A%22Allow%22%2C%22Principal%22%3A%7B%22Service%22%3A%22lambda.amazonaws.com%22%7D%2C%22Action%22%3A%22sts%3AAssumeRole%22%7D%5D%7D"
	assert.True(t, TrustPolicyMatches(encoded, desired))
	assert.False(t, TrustPolicyMatches("%7B%7D", desired))
	assert.False(t, TrustPolicyMatches("%zz", desired))
}

func TestDecodeLivePolicy_KeepsPlusSigns(t *testing.T) {
	live := "%7B%22Condition%22%3A%7B%22StringLike%22%3A%7B%22aws%3AuserId%22%3A%22AIDA+ops%2A%22%7D%7D%7D"
	assert.Equal(t, `{"Condition":{"StringLike":{"aws:userId":"AIDA+ops*"}}}`, DecodeLivePolicy(live))
	assert.Equal(t, "a b", DecodeLivePolicy("a%20b"))
}

func TestPolicyDiff(t *testing.T) {
	missing, extraneous := PolicyDiff(
		[]string{"arn:a", "arn:b", "arn:c"},
		[]string{"arn:c", "arn:d", "arn:a"},
	)
	assert.Equal(t, []string{"arn:b"}, missing)
	assert.Equal(t, []string{"arn:d"}, extraneous)

	missing, extraneous = PolicyDiff(nil, nil)
	assert.Empty(t, missing)
	assert.Empty(t, extraneous)
}
