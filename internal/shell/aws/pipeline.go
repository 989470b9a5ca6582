package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	cbtypes "github.com/aws/aws-sdk-go-v2/service/codebuild/types"

	"github.com/slipway-sh/slipway/internal/core/buildspec"
	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

const buildImage = "aws/codebuild/standard:7.0"

// =============================================================================
// Pipeline Apply
// =============================================================================

// ensurePipeline creates the build project against the source repository
// (through the pre-created connection) and a webhook that triggers a build on
// every push to the branch. The generated buildspec pushes to the stack's
// repository and forces a new service deployment, which is what feeds the
// running service.
func (t *Topology) ensurePipeline(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	names := plan.Names
	spec := plan.Spec
	var resources []domain.Resource

	buildspecYAML, err := buildspec.Render(buildspec.Params{
		RepositoryURI: state.RepositoryURI,
		Cluster:       names.Cluster,
		Service:       names.Service,
		Region:        spec.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render buildspec: %w", err)
	}

	source := &cbtypes.ProjectSource{
		Type:      cbtypes.SourceTypeGithub,
		Location:  str(fmt.Sprintf("https://github.com/%s.git", spec.SourceRepository())),
		Buildspec: str(buildspecYAML),
		Auth: &cbtypes.SourceAuth{
			Type:     cbtypes.SourceAuthTypeCodeconnections,
			Resource: str(spec.ConnectionARN),
		},
	}
	environment := &cbtypes.ProjectEnvironment{
		Type:        cbtypes.EnvironmentTypeLinuxContainer,
		ComputeType: cbtypes.ComputeTypeBuildGeneral1Small,
		Image:       str(buildImage),
		// Docker-in-docker for the image build.
		PrivilegedMode: awssdk.Bool(true),
		EnvironmentVariables: []cbtypes.EnvironmentVariable{
			{Name: str("REPOSITORY_URI"), Value: str(state.RepositoryURI)},
			{Name: str("CLUSTER_NAME"), Value: str(names.Cluster)},
			{Name: str("SERVICE_NAME"), Value: str(names.Service)},
			{Name: str("AWS_DEFAULT_REGION"), Value: str(spec.Region)},
		},
	}
	artifacts := &cbtypes.ProjectArtifacts{
		Type: cbtypes.ArtifactsTypeNoArtifacts,
	}

	var projectARN string
	// The build role was created one step earlier; tolerate propagation lag.
	err = retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
		out, createErr := t.clients.CodeBuild.CreateProject(ctx, &codebuild.CreateProjectInput{
			Name:          str(names.BuildProject),
			Description:   str("Builds " + spec.SourceRepository() + " and redeploys " + names.Service),
			Source:        source,
			SourceVersion: str(spec.Branch),
			Artifacts:     artifacts,
			Environment:   environment,
			ServiceRole:   str(state.BuildRoleARN),
			Tags: []cbtypes.Tag{
				{Key: str("ManagedBy"), Value: str("slipway")},
			},
		})
		if createErr != nil {
			if isAlreadyExists(createErr) {
				updateOut, updateErr := t.clients.CodeBuild.UpdateProject(ctx, &codebuild.UpdateProjectInput{
					Name:          str(names.BuildProject),
					Source:        source,
					SourceVersion: str(spec.Branch),
					Artifacts:     artifacts,
					Environment:   environment,
					ServiceRole:   str(state.BuildRoleARN),
				})
				if updateErr != nil {
					return updateErr
				}
				projectARN = awssdk.ToString(updateOut.Project.Arn)
				return nil
			}
			return createErr
		}
		projectARN = awssdk.ToString(out.Project.Arn)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create build project %s: %w", names.BuildProject, err)
	}
	state.ProjectName = names.BuildProject
	resources = append(resources, domain.Resource{Kind: domain.ResourceBuildProject, Name: names.BuildProject, ProviderID: projectARN})

	webhookURL, err := t.ensureWebhook(ctx, names.BuildProject, spec.Branch)
	if err != nil {
		return resources, err
	}
	if webhookURL != "" {
		resources = append(resources, domain.Resource{Kind: domain.ResourceWebhook, Name: names.BuildProject + "-webhook", ProviderID: webhookURL})
	}

	if t.config.StartInitialBuild {
		_, err = t.clients.CodeBuild.StartBuild(ctx, &codebuild.StartBuildInput{
			ProjectName: str(names.BuildProject),
		})
		if err != nil {
			// The webhook still delivers on the next push.
			t.logger.Warn("failed to start initial build", "project", names.BuildProject, "error", err)
		} else {
			t.logger.Info("initial build started", "project", names.BuildProject)
		}
	}

	t.logger.Info("pipeline ready", "project", names.BuildProject, "branch", spec.Branch)
	return resources, nil
}

// ensureWebhook registers the push trigger for the branch.
func (t *Topology) ensureWebhook(ctx context.Context, project, branch string) (string, error) {
	out, err := t.clients.CodeBuild.CreateWebhook(ctx, &codebuild.CreateWebhookInput{
		ProjectName: str(project),
		FilterGroups: [][]cbtypes.WebhookFilter{
			{
				{Type: cbtypes.WebhookFilterTypeEvent, Pattern: str("PUSH")},
				{Type: cbtypes.WebhookFilterTypeHeadRef, Pattern: str("^refs/heads/" + branch + "$")},
			},
		},
	})
	if err != nil {
		if isAlreadyExists(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to create webhook for %s: %w", project, err)
	}
	return awssdk.ToString(out.Webhook.Url), nil
}

// =============================================================================
// Pipeline Destroy
// =============================================================================

// destroyPipeline removes the webhook and the build project.
func (t *Topology) destroyPipeline(ctx context.Context, plan *stack.Plan) error {
	name := plan.Names.BuildProject

	_, err := t.clients.CodeBuild.DeleteWebhook(ctx, &codebuild.DeleteWebhookInput{
		ProjectName: str(name),
	})
	if err != nil && !isNotFound(err) {
		t.logger.Warn("failed to delete webhook", "project", name, "error", err)
	}

	_, err = t.clients.CodeBuild.DeleteProject(ctx, &codebuild.DeleteProjectInput{
		Name: str(name),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete build project %s: %w", name, err)
	}
	t.logger.Info("build project deleted", "project", name)
	return nil
}
