package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Stack Creation Tests
// =============================================================================

func validStackArgs() (string, string, string, string, string, string) {
	return "demo", "us-east-1",
		"arn:aws:codestar-connections:us-east-1:123456789012:connection/abc",
		"acme", "widgets", "main"
}

func TestNewStack_Success(t *testing.T) {
	name, region, conn, owner, repo, branch := validStackArgs()
	stack, err := NewStack(name, region, conn, owner, repo, branch)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(stack.ReferenceID, "stk_"))
	assert.Equal(t, StackStatusPending, stack.Status)
	assert.Equal(t, "demo", stack.Name)
	assert.Equal(t, "main", stack.Branch)
	assert.NotNil(t, stack.Outputs)
	assert.False(t, stack.CreatedAt.IsZero())
}

func TestNewStack_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(args *[6]string)
		wantErr error
	}{
		{"missing name", func(a *[6]string) { a[0] = "" }, ErrStackNameRequired},
		{"missing region", func(a *[6]string) { a[1] = "" }, ErrStackRegionRequired},
		{"missing connection", func(a *[6]string) { a[2] = "" }, ErrConnectionRequired},
		{"missing owner", func(a *[6]string) { a[3] = "" }, ErrRepoOwnerRequired},
		{"missing repo", func(a *[6]string) { a[4] = "" }, ErrRepoNameRequired},
		{"missing branch", func(a *[6]string) { a[5] = "" }, ErrBranchRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := [6]string{}
			args[0], args[1], args[2], args[3], args[4], args[5] = validStackArgs()
			tt.mutate(&args)
			_, err := NewStack(args[0], args[1], args[2], args[3], args[4], args[5])
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// =============================================================================
// Status Transition Tests
// =============================================================================

func TestStackStatus_IsValid(t *testing.T) {
	assert.True(t, StackStatusPending.IsValid())
	assert.True(t, StackStatusDestroyed.IsValid())
	assert.False(t, StackStatus("bogus").IsValid())
}

func TestStackStatus_IsActive(t *testing.T) {
	assert.True(t, StackStatusPending.IsActive())
	assert.True(t, StackStatusPlanning.IsActive())
	assert.True(t, StackStatusProvisioning.IsActive())
	assert.False(t, StackStatusReady.IsActive())
	assert.False(t, StackStatusFailed.IsActive())
}

func TestValidateStackTransition(t *testing.T) {
	valid := []struct{ from, to StackStatus }{
		{StackStatusPending, StackStatusPlanning},
		{StackStatusPlanning, StackStatusProvisioning},
		{StackStatusProvisioning, StackStatusReady},
		{StackStatusProvisioning, StackStatusFailed},
		{StackStatusReady, StackStatusPlanning},
		{StackStatusReady, StackStatusDestroying},
		{StackStatusFailed, StackStatusPending},
		{StackStatusFailed, StackStatusDestroying},
		{StackStatusDestroying, StackStatusDestroyed},
		{StackStatusPending, StackStatusDestroying},
		{StackStatusProvisioning, StackStatusPlanning},
		{StackStatusProvisioning, StackStatusDestroying},
	}
	for _, tt := range valid {
		assert.NoError(t, ValidateStackTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}

	invalid := []struct{ from, to StackStatus }{
		{StackStatusPending, StackStatusReady},
		{StackStatusReady, StackStatusPending},
		{StackStatusDestroyed, StackStatusPending},
		{StackStatusDestroyed, StackStatusDestroying},
		{StackStatusPlanning, StackStatusReady},
	}
	for _, tt := range invalid {
		assert.ErrorIs(t, ValidateStackTransition(tt.from, tt.to), ErrInvalidStackTransition, "%s -> %s", tt.from, tt.to)
	}
}

func TestStack_TransitionLifecycle(t *testing.T) {
	stack, err := NewStack(validStackArgs())
	require.NoError(t, err)

	require.NoError(t, stack.Transition(StackStatusPlanning))
	require.NoError(t, stack.Transition(StackStatusProvisioning))
	require.NoError(t, stack.Transition(StackStatusReady))

	assert.NotNil(t, stack.CompletedAt)

	require.NoError(t, stack.Transition(StackStatusDestroying))
	require.NoError(t, stack.Transition(StackStatusDestroyed))
	assert.True(t, stack.Status.IsTerminal())

	err = stack.Transition(StackStatusPending)
	assert.ErrorIs(t, err, ErrInvalidStackTransition)
}

func TestStack_RetryClearsError(t *testing.T) {
	stack, err := NewStack(validStackArgs())
	require.NoError(t, err)

	stack.SetStep("Creating network")
	require.NoError(t, stack.TransitionToFailed("vpc limit exceeded"))
	assert.Equal(t, "vpc limit exceeded", stack.ErrorMessage)

	require.NoError(t, stack.Transition(StackStatusPending))
	assert.Empty(t, stack.ErrorMessage)
	assert.Empty(t, stack.CurrentStep)
}

func TestStack_Reset(t *testing.T) {
	stack, err := NewStack(validStackArgs())
	require.NoError(t, err)

	assert.ErrorIs(t, stack.Reset(), ErrInvalidStackTransition)

	require.NoError(t, stack.Transition(StackStatusDestroying))
	require.NoError(t, stack.Transition(StackStatusDestroyed))
	stack.SetOutput(OutputClusterName, "demo-cluster")

	require.NoError(t, stack.Reset())
	assert.Equal(t, StackStatusPending, stack.Status)
	assert.Empty(t, stack.Outputs)
	assert.Nil(t, stack.CompletedAt)
}

// =============================================================================
// Output Tests
// =============================================================================

func TestStack_SetOutput(t *testing.T) {
	stack, err := NewStack(validStackArgs())
	require.NoError(t, err)

	stack.Outputs = nil // simulate a stack loaded without outputs
	stack.SetOutput(OutputClusterName, "demo-cluster")
	stack.SetOutput(OutputServiceName, "demo-svc")

	assert.Equal(t, "demo-cluster", stack.Outputs[OutputClusterName])
	assert.Equal(t, "demo-svc", stack.Outputs[OutputServiceName])
}
