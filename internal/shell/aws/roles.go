package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	coreiam "github.com/slipway-sh/slipway/internal/core/iam"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// buildPolicyName is the inline policy attached to the build role.
const buildPolicyName = "build-permissions"

// =============================================================================
// IAM Apply
// =============================================================================

// ensureRoles creates the task execution role and the build project role,
// then wires the build role's permissions: push to the stack's repository,
// write build logs, and force a new deployment of the stack's service. All
// ARNs are derived from the spec, so this step does not depend on the
// service existing yet.
func (t *Topology) ensureRoles(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	names := plan.Names
	spec := plan.Spec

	execRoleARN, err := t.findOrCreateRole(ctx, names.TaskExecRole, coreiam.ServiceECSTasks,
		"Task execution role for "+spec.Name)
	if err != nil {
		return nil, err
	}
	state.ExecRoleARN = execRoleARN

	// Image pull and log write rights come from the AWS-managed policy.
	_, err = t.clients.IAM.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
		RoleName:  str(names.TaskExecRole),
		PolicyArn: str(coreiam.TaskExecutionManagedPolicyARN),
	})
	if err != nil && !isAlreadyExists(err) {
		return nil, fmt.Errorf("failed to attach execution policy to %s: %w", names.TaskExecRole, err)
	}

	buildRoleARN, err := t.findOrCreateRole(ctx, names.BuildRole, coreiam.ServiceCodeBuild,
		"Build project role for "+spec.Name)
	if err != nil {
		return nil, err
	}
	state.BuildRoleARN = buildRoleARN

	policy := coreiam.BuildProjectPolicy(coreiam.BuildProjectPolicyParams{
		RepositoryARN: stack.RepositoryARN(spec.Region, state.AccountID, names.Repository),
		ServiceARN:    stack.ServiceARN(spec.Region, state.AccountID, names.Cluster, names.Service),
		ExecRoleARN:   execRoleARN,
		LogGroupARNs: []string{
			stack.LogGroupARN(spec.Region, state.AccountID, names.BuildLogGroup),
		},
	})
	policyJSON, err := policy.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal build policy: %w", err)
	}

	// PutRolePolicy overwrites, which makes re-applies converge on the
	// current derived ARNs.
	_, err = t.clients.IAM.PutRolePolicy(ctx, &iam.PutRolePolicyInput{
		RoleName:       str(names.BuildRole),
		PolicyName:     str(buildPolicyName),
		PolicyDocument: str(policyJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put build policy on %s: %w", names.BuildRole, err)
	}

	t.logger.Info("roles ready", "build_role", names.BuildRole, "task_exec_role", names.TaskExecRole)
	return []domain.Resource{
		{Kind: domain.ResourceRole, Name: names.TaskExecRole, ProviderID: execRoleARN},
		{Kind: domain.ResourceRole, Name: names.BuildRole, ProviderID: buildRoleARN},
	}, nil
}

func (t *Topology) findOrCreateRole(ctx context.Context, name, servicePrincipal, description string) (string, error) {
	trustJSON, err := coreiam.AssumeRolePolicy(servicePrincipal).Marshal()
	if err != nil {
		return "", fmt.Errorf("failed to marshal trust policy: %w", err)
	}

	out, err := t.clients.IAM.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 str(name),
		AssumeRolePolicyDocument: str(trustJSON),
		Description:              str(description),
		Tags: []iamtypes.Tag{
			{Key: str("ManagedBy"), Value: str("slipway")},
		},
	})
	if err == nil {
		return awssdk.ToString(out.Role.Arn), nil
	}
	if !isAlreadyExists(err) {
		return "", fmt.Errorf("failed to create role %s: %w", name, err)
	}

	getOut, err := t.clients.IAM.GetRole(ctx, &iam.GetRoleInput{RoleName: str(name)})
	if err != nil {
		return "", fmt.Errorf("failed to adopt existing role %s: %w", name, err)
	}
	return awssdk.ToString(getOut.Role.Arn), nil
}

// =============================================================================
// IAM Destroy
// =============================================================================

// destroyRoles detaches and deletes both roles.
func (t *Topology) destroyRoles(ctx context.Context, plan *stack.Plan) error {
	names := plan.Names

	_, err := t.clients.IAM.DeleteRolePolicy(ctx, &iam.DeleteRolePolicyInput{
		RoleName:   str(names.BuildRole),
		PolicyName: str(buildPolicyName),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete build policy from %s: %w", names.BuildRole, err)
	}

	_, err = t.clients.IAM.DetachRolePolicy(ctx, &iam.DetachRolePolicyInput{
		RoleName:  str(names.TaskExecRole),
		PolicyArn: str(coreiam.TaskExecutionManagedPolicyARN),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to detach execution policy from %s: %w", names.TaskExecRole, err)
	}

	for _, role := range []string{names.BuildRole, names.TaskExecRole} {
		_, err = t.clients.IAM.DeleteRole(ctx, &iam.DeleteRoleInput{RoleName: str(role)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete role %s: %w", role, err)
		}
	}

	t.logger.Info("roles deleted", "build_role", names.BuildRole, "task_exec_role", names.TaskExecRole)
	return nil
}
