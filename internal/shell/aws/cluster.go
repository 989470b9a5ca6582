package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Cluster
// =============================================================================

// ensureCluster creates the container service cluster, adopting an ACTIVE one.
func (t *Topology) ensureCluster(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	name := plan.Names.Cluster

	descOut, err := t.clients.ECS.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{name},
	})
	if err == nil {
		for _, c := range descOut.Clusters {
			if awssdk.ToString(c.Status) == "ACTIVE" {
				state.ClusterARN = awssdk.ToString(c.ClusterArn)
				t.logger.Info("cluster adopted", "cluster", name)
				return []domain.Resource{
					{Kind: domain.ResourceCluster, Name: name, ProviderID: state.ClusterARN},
				}, nil
			}
		}
	}

	out, err := t.clients.ECS.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: str(name),
		Tags: []ecstypes.Tag{
			{Key: str("ManagedBy"), Value: str("slipway")},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster %s: %w", name, err)
	}
	state.ClusterARN = awssdk.ToString(out.Cluster.ClusterArn)

	t.logger.Info("cluster ready", "cluster", name, "cluster_arn", state.ClusterARN)
	return []domain.Resource{
		{Kind: domain.ResourceCluster, Name: name, ProviderID: state.ClusterARN},
	}, nil
}

// destroyCluster deletes the cluster. The service is drained and deleted
// first (destroy order), so the cluster is empty by the time this runs.
func (t *Topology) destroyCluster(ctx context.Context, plan *stack.Plan) error {
	name := plan.Names.Cluster
	err := retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
		_, err := t.clients.ECS.DeleteCluster(ctx, &ecs.DeleteClusterInput{Cluster: str(name)})
		return err
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete cluster %s: %w", name, err)
	}
	if err == nil {
		t.logger.Info("cluster deleted", "cluster", name)
	}
	return nil
}
