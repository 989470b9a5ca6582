// Package domain contains the core domain types and validation logic.
// This is part of the Functional Core - all functions are pure with no I/O.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Stack Errors
// =============================================================================

var (
	ErrStackNameRequired      = errors.New("stack name is required")
	ErrStackRegionRequired    = errors.New("region is required")
	ErrConnectionRequired     = errors.New("source connection ARN is required")
	ErrRepoOwnerRequired      = errors.New("repository owner is required")
	ErrRepoNameRequired       = errors.New("repository name is required")
	ErrBranchRequired         = errors.New("branch is required")
	ErrInvalidStackTransition = errors.New("invalid stack status transition")
)

// =============================================================================
// Output Keys
// =============================================================================

// Output keys published by a ready stack.
const (
	OutputLoadBalancerDNS = "load_balancer_dns"
	OutputRepositoryURI   = "repository_uri"
	OutputBuildProject    = "build_project"
	OutputClusterName     = "cluster_name"
	OutputServiceName     = "service_name"
)

// =============================================================================
// Stack Status
// =============================================================================

// StackStatus represents the lifecycle status of a deployment stack.
type StackStatus string

const (
	StackStatusPending      StackStatus = "pending"
	StackStatusPlanning     StackStatus = "planning"
	StackStatusProvisioning StackStatus = "provisioning"
	StackStatusReady        StackStatus = "ready"
	StackStatusFailed       StackStatus = "failed"
	StackStatusDestroying   StackStatus = "destroying"
	StackStatusDestroyed    StackStatus = "destroyed"
)

// IsValid checks if the stack status is valid.
func (s StackStatus) IsValid() bool {
	switch s {
	case StackStatusPending, StackStatusPlanning, StackStatusProvisioning,
		StackStatusReady, StackStatusFailed, StackStatusDestroying, StackStatusDestroyed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if no further transitions are possible.
func (s StackStatus) IsTerminal() bool {
	return s == StackStatusDestroyed
}

// IsActive returns true if an apply is still in progress.
func (s StackStatus) IsActive() bool {
	return s == StackStatusPending || s == StackStatusPlanning || s == StackStatusProvisioning
}

// validStackTransitions defines the allowed state transitions. Teardown is
// reachable from every non-terminal state so an interrupted apply never
// strands a stack, and provisioning can return to planning to resume one.
var validStackTransitions = map[StackStatus][]StackStatus{
	StackStatusPending:      {StackStatusPlanning, StackStatusDestroying, StackStatusFailed},
	StackStatusPlanning:     {StackStatusProvisioning, StackStatusDestroying, StackStatusFailed},
	StackStatusProvisioning: {StackStatusReady, StackStatusPlanning, StackStatusDestroying, StackStatusFailed},
	StackStatusReady:        {StackStatusPlanning, StackStatusDestroying}, // re-apply or tear down
	StackStatusFailed:       {StackStatusPending, StackStatusDestroying},  // retry or tear down
	StackStatusDestroying:   {StackStatusDestroyed, StackStatusFailed},
	StackStatusDestroyed:    {}, // terminal
}

// ValidateStackTransition checks if a stack status transition is valid.
func ValidateStackTransition(from, to StackStatus) error {
	allowed, exists := validStackTransitions[from]
	if !exists {
		return ErrInvalidStackTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidStackTransition
}

// =============================================================================
// Resource
// =============================================================================

// Resource is a provisioned cloud resource belonging to a stack.
// ProviderID is the identifier the control plane knows the resource by
// (VPC ID, ARN, repository name) and is what destroy operations use.
type Resource struct {
	Kind       string `json:"kind"`
	Name       string `json:"name"`
	ProviderID string `json:"provider_id"`
}

// Resource kinds recorded by the apply engine.
const (
	ResourceVPC             = "vpc"
	ResourceSubnet          = "subnet"
	ResourceInternetGateway = "internet_gateway"
	ResourceRouteTable      = "route_table"
	ResourceSecurityGroup   = "security_group"
	ResourceRepository      = "repository"
	ResourceCluster         = "cluster"
	ResourceRole            = "role"
	ResourceLoadBalancer    = "load_balancer"
	ResourceTargetGroup     = "target_group"
	ResourceListener        = "listener"
	ResourceTaskDefinition  = "task_definition"
	ResourceService         = "service"
	ResourceBuildProject    = "build_project"
	ResourceWebhook         = "webhook"
)

// =============================================================================
// Stack
// =============================================================================

// Stack represents a deployment topology: a build pipeline feeding a
// load-balanced container service, provisioned from a single parameter set.
type Stack struct {
	ID            int               `json:"-"`
	ReferenceID   string            `json:"id"`
	Name          string            `json:"name"`
	Region        string            `json:"region"`
	ConnectionARN string            `json:"connection_arn"`
	RepoOwner     string            `json:"repo_owner"`
	RepoName      string            `json:"repo_name"`
	Branch        string            `json:"branch"`
	Status        StackStatus       `json:"status"`
	CurrentStep   string            `json:"current_step,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	Outputs       map[string]string `json:"outputs,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty"`
}

// GenerateStackID generates a new stack reference ID.
func GenerateStackID() string {
	return "stk_" + uuid.New().String()[:8]
}

// NewStack creates a new stack with validation.
func NewStack(name, region, connectionARN, repoOwner, repoName, branch string) (*Stack, error) {
	if name == "" {
		return nil, ErrStackNameRequired
	}
	if region == "" {
		return nil, ErrStackRegionRequired
	}
	if connectionARN == "" {
		return nil, ErrConnectionRequired
	}
	if repoOwner == "" {
		return nil, ErrRepoOwnerRequired
	}
	if repoName == "" {
		return nil, ErrRepoNameRequired
	}
	if branch == "" {
		return nil, ErrBranchRequired
	}

	now := time.Now()
	return &Stack{
		ReferenceID:   GenerateStackID(),
		Name:          name,
		Region:        region,
		ConnectionARN: connectionARN,
		RepoOwner:     repoOwner,
		RepoName:      repoName,
		Branch:        branch,
		Status:        StackStatusPending,
		Outputs:       make(map[string]string),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition attempts to transition the stack to a new status.
func (s *Stack) Transition(to StackStatus) error {
	if err := ValidateStackTransition(s.Status, to); err != nil {
		return err
	}
	s.Status = to
	s.UpdatedAt = time.Now()

	if to == StackStatusReady || to == StackStatusDestroyed {
		now := time.Now()
		s.CompletedAt = &now
	}
	if to == StackStatusPending {
		// Retry - clear error
		s.ErrorMessage = ""
		s.CurrentStep = ""
	}
	return nil
}

// TransitionToFailed sets failed status with error message.
func (s *Stack) TransitionToFailed(errorMessage string) error {
	if err := ValidateStackTransition(s.Status, StackStatusFailed); err != nil {
		return err
	}
	s.Status = StackStatusFailed
	s.ErrorMessage = errorMessage
	s.UpdatedAt = time.Now()
	return nil
}

// Reset returns a destroyed stack to pending so the same name can be
// provisioned again without a new record.
func (s *Stack) Reset() error {
	if s.Status != StackStatusDestroyed {
		return ErrInvalidStackTransition
	}
	s.Status = StackStatusPending
	s.CurrentStep = ""
	s.ErrorMessage = ""
	s.Outputs = make(map[string]string)
	s.CompletedAt = nil
	s.UpdatedAt = time.Now()
	return nil
}

// SetStep updates the current step description.
func (s *Stack) SetStep(step string) {
	s.CurrentStep = step
	s.UpdatedAt = time.Now()
}

// SetOutput records a published output value.
func (s *Stack) SetOutput(key, value string) {
	if s.Outputs == nil {
		s.Outputs = make(map[string]string)
	}
	s.Outputs[key] = value
	s.UpdatedAt = time.Now()
}
