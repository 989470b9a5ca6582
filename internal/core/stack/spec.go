// Package stack contains pure functions for planning a deployment topology:
// parameter validation, resource naming, and resource graph ordering.
// This is part of the Functional Core - all functions are pure with no I/O.
package stack

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// =============================================================================
// Spec Errors
// =============================================================================

var (
	ErrNameRequired       = errors.New("stack name is required")
	ErrNameInvalid        = errors.New("stack name must be lowercase alphanumeric with hyphens")
	ErrNameTooLong        = errors.New("stack name must be at most 24 characters")
	ErrConnectionRequired = errors.New("connection ARN is required")
	ErrConnectionInvalid  = errors.New("connection ARN is not a source connection")
	ErrRepoOwnerRequired  = errors.New("repository owner is required")
	ErrRepoNameRequired   = errors.New("repository name is required")
	ErrBranchRequired     = errors.New("branch is required")
	ErrInvalidPort        = errors.New("container port must be between 1 and 65535")
	ErrInvalidDesired     = errors.New("desired count must be at least 1")
	ErrInvalidTaskSize    = errors.New("invalid Fargate CPU/memory combination")
)

// =============================================================================
// Spec Defaults
// =============================================================================

const (
	DefaultContainerPort   = 80
	DefaultDesiredCount    = 1
	DefaultCPU             = 256
	DefaultMemory          = 512
	DefaultHealthCheckPath = "/"

	// MaxNameLength keeps derived names inside the 32-char load balancer limit.
	MaxNameLength = 24
)

// stackNameRegex matches DNS-safe lowercase names: "demo", "my-app-2".
var stackNameRegex = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// connectionARNPrefixes are the service prefixes a source connection ARN may
// carry. The older codestar-connections form and the renamed codeconnections
// form reference the same resource.
var connectionARNPrefixes = []string{
	"arn:aws:codestar-connections:",
	"arn:aws:codeconnections:",
}

// =============================================================================
// Spec
// =============================================================================

// Spec is the full parameter set for a deployment topology. It is the only
// input to planning; every resource name and permission is derived from it.
type Spec struct {
	Name          string
	Region        string
	ConnectionARN string
	RepoOwner     string
	RepoName      string
	Branch        string

	ContainerPort   int
	DesiredCount    int
	CPU             int
	Memory          int
	HealthCheckPath string

	// Environment is passed to the service's container definition.
	// It may be derived from a Compose service.
	Environment map[string]string
}

// ApplyDefaults fills unset optional fields with their defaults.
func (s *Spec) ApplyDefaults() {
	if s.ContainerPort == 0 {
		s.ContainerPort = DefaultContainerPort
	}
	if s.DesiredCount == 0 {
		s.DesiredCount = DefaultDesiredCount
	}
	if s.CPU == 0 {
		s.CPU = DefaultCPU
	}
	if s.Memory == 0 {
		s.Memory = DefaultMemory
	}
	if s.HealthCheckPath == "" {
		s.HealthCheckPath = DefaultHealthCheckPath
	}
}

// Validate checks the spec for completeness and legal parameter values.
// Defaults are not applied here; call ApplyDefaults first.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return ErrNameRequired
	}
	if len(s.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if !stackNameRegex.MatchString(s.Name) {
		return ErrNameInvalid
	}
	if s.ConnectionARN == "" {
		return ErrConnectionRequired
	}
	if !validConnectionARN(s.ConnectionARN) {
		return ErrConnectionInvalid
	}
	if s.RepoOwner == "" {
		return ErrRepoOwnerRequired
	}
	if s.RepoName == "" {
		return ErrRepoNameRequired
	}
	if s.Branch == "" {
		return ErrBranchRequired
	}
	if s.ContainerPort < 1 || s.ContainerPort > 65535 {
		return ErrInvalidPort
	}
	if s.DesiredCount < 1 {
		return ErrInvalidDesired
	}
	if !ValidTaskSize(s.CPU, s.Memory) {
		return fmt.Errorf("%w: cpu=%d memory=%d", ErrInvalidTaskSize, s.CPU, s.Memory)
	}
	return nil
}

// SourceRepository returns the owner/name form the build project's source uses.
func (s *Spec) SourceRepository() string {
	return s.RepoOwner + "/" + s.RepoName
}

func validConnectionARN(arn string) bool {
	for _, prefix := range connectionARNPrefixes {
		if strings.HasPrefix(arn, prefix) {
			return true
		}
	}
	return false
}

// =============================================================================
// Fargate Task Sizes
// =============================================================================

// fargateTaskSizes maps CPU units to the legal memory range (MiB) the
// managed service accepts, as min/max/step.
var fargateTaskSizes = map[int][3]int{
	256:  {512, 2048, 512},
	512:  {1024, 4096, 1024},
	1024: {2048, 8192, 1024},
	2048: {4096, 16384, 1024},
	4096: {8192, 30720, 1024},
}

// ValidTaskSize reports whether the CPU/memory pair is a combination the
// managed container service accepts for a task.
func ValidTaskSize(cpu, memory int) bool {
	r, ok := fargateTaskSizes[cpu]
	if !ok {
		return false
	}
	min, max, step := r[0], r[1], r[2]
	if memory < min || memory > max {
		return false
	}
	return (memory-min)%step == 0
}
