package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Registry
// =============================================================================

// ensureRegistry creates the image repository, adopting an existing one.
func (t *Topology) ensureRegistry(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	name := plan.Names.Repository

	out, err := t.clients.ECR.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: str(name),
		ImageScanningConfiguration: &ecrtypes.ImageScanningConfiguration{
			ScanOnPush: true,
		},
		Tags: []ecrtypes.Tag{
			{Key: str("ManagedBy"), Value: str("slipway")},
		},
	})
	if err != nil {
		if !isAlreadyExists(err) {
			return nil, fmt.Errorf("failed to create repository %s: %w", name, err)
		}
		descOut, descErr := t.clients.ECR.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
			RepositoryNames: []string{name},
		})
		if descErr != nil || len(descOut.Repositories) == 0 {
			return nil, fmt.Errorf("failed to adopt existing repository %s: %w", name, descErr)
		}
		repo := descOut.Repositories[0]
		state.RepositoryURI = awssdk.ToString(repo.RepositoryUri)
		state.RepositoryARN = awssdk.ToString(repo.RepositoryArn)
	} else {
		state.RepositoryURI = awssdk.ToString(out.Repository.RepositoryUri)
		state.RepositoryARN = awssdk.ToString(out.Repository.RepositoryArn)
	}

	t.logger.Info("repository ready", "repository_uri", state.RepositoryURI)
	return []domain.Resource{
		{Kind: domain.ResourceRepository, Name: name, ProviderID: state.RepositoryURI},
	}, nil
}

// destroyRegistry deletes the repository and every image in it.
func (t *Topology) destroyRegistry(ctx context.Context, plan *stack.Plan) error {
	name := plan.Names.Repository
	_, err := t.clients.ECR.DeleteRepository(ctx, &ecr.DeleteRepositoryInput{
		RepositoryName: str(name),
		Force:          true, // images are rebuilt from source; nothing to keep
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete repository %s: %w", name, err)
	}
	if err == nil {
		t.logger.Info("repository deleted", "repository", name)
	}
	return nil
}
