package aws

import (
	"context"
	"fmt"
	"sort"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Service Apply
// =============================================================================

// ensureService registers the task definition and creates (or converges) the
// load-balanced service. The task definition pins the repository's "latest"
// tag; builds feed the service by pushing and forcing a new deployment, so
// the definition itself never changes per release.
func (t *Topology) ensureService(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	names := plan.Names
	spec := plan.Spec
	var resources []domain.Resource

	taskDefARN, err := t.registerTaskDefinition(ctx, plan, state)
	if err != nil {
		return nil, err
	}
	state.TaskDefinitionARN = taskDefARN
	resources = append(resources, domain.Resource{Kind: domain.ResourceTaskDefinition, Name: names.TaskFamily, ProviderID: taskDefARN})

	serviceARN, err := t.findOrCreateService(ctx, plan, state, taskDefARN)
	if err != nil {
		return resources, err
	}
	state.ServiceARN = serviceARN
	resources = append(resources, domain.Resource{Kind: domain.ResourceService, Name: names.Service, ProviderID: serviceARN})

	t.logger.Info("service ready", "service", names.Service, "desired_count", spec.DesiredCount)
	return resources, nil
}

func (t *Topology) registerTaskDefinition(ctx context.Context, plan *stack.Plan, state *State) (string, error) {
	names := plan.Names
	spec := plan.Spec

	env := make([]ecstypes.KeyValuePair, 0, len(spec.Environment))
	keys := make([]string, 0, len(spec.Environment))
	for k := range spec.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys) // stable registration input across runs
	for _, k := range keys {
		env = append(env, ecstypes.KeyValuePair{Name: str(k), Value: str(spec.Environment[k])})
	}

	out, err := t.clients.ECS.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  str(names.TaskFamily),
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		Cpu:                     str(fmt.Sprintf("%d", spec.CPU)),
		Memory:                  str(fmt.Sprintf("%d", spec.Memory)),
		ExecutionRoleArn:        str(state.ExecRoleARN),
		ContainerDefinitions: []ecstypes.ContainerDefinition{
			{
				Name:      str(names.Container),
				Image:     str(state.RepositoryURI + ":latest"),
				Essential: awssdk.Bool(true),
				PortMappings: []ecstypes.PortMapping{
					{
						ContainerPort: i32(spec.ContainerPort),
						Protocol:      ecstypes.TransportProtocolTcp,
					},
				},
				Environment: env,
				LogConfiguration: &ecstypes.LogConfiguration{
					LogDriver: ecstypes.LogDriverAwslogs,
					Options: map[string]string{
						"awslogs-group":         names.LogGroup,
						"awslogs-region":        spec.Region,
						"awslogs-stream-prefix": names.Container,
						"awslogs-create-group":  "true",
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to register task definition %s: %w", names.TaskFamily, err)
	}
	return awssdk.ToString(out.TaskDefinition.TaskDefinitionArn), nil
}

func (t *Topology) findOrCreateService(ctx context.Context, plan *stack.Plan, state *State, taskDefARN string) (string, error) {
	names := plan.Names
	spec := plan.Spec

	descOut, err := t.clients.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  str(names.Cluster),
		Services: []string{names.Service},
	})
	if err == nil {
		for _, svc := range descOut.Services {
			if awssdk.ToString(svc.Status) == "ACTIVE" {
				// Converge the existing service onto the current definition.
				_, err = t.clients.ECS.UpdateService(ctx, &ecs.UpdateServiceInput{
					Cluster:        str(names.Cluster),
					Service:        str(names.Service),
					TaskDefinition: str(taskDefARN),
					DesiredCount:   i32(spec.DesiredCount),
				})
				if err != nil {
					return "", fmt.Errorf("failed to update service %s: %w", names.Service, err)
				}
				return awssdk.ToString(svc.ServiceArn), nil
			}
		}
	}

	var serviceARN string
	// Service creation references the execution role via the task definition;
	// a freshly created role may not be visible yet.
	err = retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
		out, createErr := t.clients.ECS.CreateService(ctx, &ecs.CreateServiceInput{
			Cluster:        str(names.Cluster),
			ServiceName:    str(names.Service),
			TaskDefinition: str(taskDefARN),
			DesiredCount:   i32(spec.DesiredCount),
			LaunchType:     ecstypes.LaunchTypeFargate,
			NetworkConfiguration: &ecstypes.NetworkConfiguration{
				AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
					Subnets:        state.SubnetIDs,
					SecurityGroups: []string{state.SvcSecurityGroupID},
					// Public subnets without a NAT gateway: tasks need their
					// own addresses to pull images.
					AssignPublicIp: ecstypes.AssignPublicIpEnabled,
				},
			},
			LoadBalancers: []ecstypes.LoadBalancer{
				{
					TargetGroupArn: str(state.TargetGroupARN),
					ContainerName:  str(names.Container),
					ContainerPort:  i32(spec.ContainerPort),
				},
			},
			HealthCheckGracePeriodSeconds: i32(60),
			Tags: []ecstypes.Tag{
				{Key: str("ManagedBy"), Value: str("slipway")},
			},
		})
		if createErr != nil {
			return createErr
		}
		serviceARN = awssdk.ToString(out.Service.ServiceArn)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create service %s: %w", names.Service, err)
	}

	// The first deployment cannot stabilize until the pipeline pushes an
	// image, so apply does not wait for steady state here.
	return serviceARN, nil
}

// =============================================================================
// Service Destroy
// =============================================================================

// destroyService drains the service to zero, deletes it, waits for it to go
// INACTIVE, and deregisters the task definition revisions.
func (t *Topology) destroyService(ctx context.Context, plan *stack.Plan) error {
	names := plan.Names

	_, err := t.clients.ECS.UpdateService(ctx, &ecs.UpdateServiceInput{
		Cluster:      str(names.Cluster),
		Service:      str(names.Service),
		DesiredCount: i32(0),
	})
	if err != nil && !isNotFound(err) && errorCode(err) != "ServiceNotActiveException" {
		return fmt.Errorf("failed to drain service %s: %w", names.Service, err)
	}

	_, err = t.clients.ECS.DeleteService(ctx, &ecs.DeleteServiceInput{
		Cluster: str(names.Cluster),
		Service: str(names.Service),
		Force:   awssdk.Bool(true),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete service %s: %w", names.Service, err)
	}
	if err == nil {
		if err := t.waitForServiceInactive(ctx, names.Cluster, names.Service); err != nil {
			return err
		}
		t.logger.Info("service deleted", "service", names.Service)
	}

	return t.deregisterTaskDefinitions(ctx, names.TaskFamily)
}

func (t *Topology) waitForServiceInactive(ctx context.Context, cluster, service string) error {
	for i := 0; i < t.config.PollAttempts; i++ {
		out, err := t.clients.ECS.DescribeServices(ctx, &ecs.DescribeServicesInput{
			Cluster:  str(cluster),
			Services: []string{service},
		})
		if err != nil || len(out.Services) == 0 {
			return nil
		}
		if awssdk.ToString(out.Services[0].Status) == "INACTIVE" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.PollInterval):
		}
	}
	return fmt.Errorf("timed out waiting for service %s to drain", service)
}

func (t *Topology) deregisterTaskDefinitions(ctx context.Context, family string) error {
	out, err := t.clients.ECS.ListTaskDefinitions(ctx, &ecs.ListTaskDefinitionsInput{
		FamilyPrefix: str(family),
		Status:       ecstypes.TaskDefinitionStatusActive,
	})
	if err != nil {
		return fmt.Errorf("failed to list task definitions for %s: %w", family, err)
	}
	for _, arn := range out.TaskDefinitionArns {
		_, err = t.clients.ECS.DeregisterTaskDefinition(ctx, &ecs.DeregisterTaskDefinitionInput{
			TaskDefinition: str(arn),
		})
		if err != nil && !isNotFound(err) {
			t.logger.Warn("failed to deregister task definition", "arn", arn, "error", err)
		}
	}
	return nil
}
