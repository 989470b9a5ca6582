// Package buildspec generates the build specification the build project runs:
// build the image, push it to the stack's repository, and force a new
// deployment of the service. This is part of the Functional Core - pure
// YAML rendering with no I/O.
package buildspec

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Errors
// =============================================================================

var (
	ErrRepositoryURIRequired = errors.New("repository URI is required")
	ErrClusterRequired       = errors.New("cluster name is required")
	ErrServiceRequired       = errors.New("service name is required")
	ErrRegionRequired        = errors.New("region is required")
)

// =============================================================================
// Buildspec Types
// =============================================================================

// Spec mirrors the buildspec schema the build service consumes.
type Spec struct {
	Version string `yaml:"version"`
	Phases  Phases `yaml:"phases"`
}

// Phases holds the three build phases this pipeline uses.
type Phases struct {
	PreBuild  Phase `yaml:"pre_build"`
	Build     Phase `yaml:"build"`
	PostBuild Phase `yaml:"post_build"`
}

// Phase is an ordered command list.
type Phase struct {
	Commands []string `yaml:"commands"`
}

// Params are the values substituted into the generated buildspec. They are
// also exported to the build environment so the commands stay static.
type Params struct {
	RepositoryURI string
	Cluster       string
	Service       string
	Region        string
}

func (p Params) validate() error {
	if p.RepositoryURI == "" {
		return ErrRepositoryURIRequired
	}
	if p.Cluster == "" {
		return ErrClusterRequired
	}
	if p.Service == "" {
		return ErrServiceRequired
	}
	if p.Region == "" {
		return ErrRegionRequired
	}
	return nil
}

// =============================================================================
// Rendering
// =============================================================================

// Build constructs the buildspec structure for the given parameters.
// The image is tagged both "latest" (what the task definition pins) and the
// short commit hash (for traceability); the final command forces the service
// to roll onto the fresh "latest".
func Build(p Params) (*Spec, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	return &Spec{
		Version: "0.2",
		Phases: Phases{
			PreBuild: Phase{
				Commands: []string{
					fmt.Sprintf("aws ecr get-login-password --region %s | docker login --username AWS --password-stdin %s", p.Region, registryHost(p.RepositoryURI)),
					"COMMIT_TAG=$(echo $CODEBUILD_RESOLVED_SOURCE_VERSION | cut -c1-7)",
				},
			},
			Build: Phase{
				Commands: []string{
					fmt.Sprintf("docker build -t %s:latest .", p.RepositoryURI),
					fmt.Sprintf("docker tag %s:latest %s:$COMMIT_TAG", p.RepositoryURI, p.RepositoryURI),
				},
			},
			PostBuild: Phase{
				Commands: []string{
					fmt.Sprintf("docker push %s:latest", p.RepositoryURI),
					fmt.Sprintf("docker push %s:$COMMIT_TAG", p.RepositoryURI),
					fmt.Sprintf("aws ecs update-service --cluster %s --service %s --force-new-deployment --region %s", p.Cluster, p.Service, p.Region),
				},
			},
		},
	}, nil
}

// Render returns the buildspec as YAML.
func Render(p Params) (string, error) {
	spec, err := Build(p)
	if err != nil {
		return "", err
	}
	out, err := yaml.Marshal(spec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal buildspec: %w", err)
	}
	return string(out), nil
}

// registryHost strips the repository path from a repository URI, leaving the
// registry hostname docker login expects.
func registryHost(repositoryURI string) string {
	for i := 0; i < len(repositoryURI); i++ {
		if repositoryURI[i] == '/' {
			return repositoryURI[:i]
		}
	}
	return repositoryURI
}
