package aws

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Provisioner Interface
// =============================================================================

// State carries identifiers produced by earlier apply steps and consumed by
// later ones. It is rebuilt from stored resources on destroy.
type State struct {
	AccountID string

	// network
	VpcID              string
	SubnetIDs          []string
	ALBSecurityGroupID string
	SvcSecurityGroupID string

	// registry
	RepositoryURI string
	RepositoryARN string

	// cluster
	ClusterARN string

	// iam
	BuildRoleARN string
	ExecRoleARN  string

	// load balancer
	LoadBalancerARN string
	LoadBalancerDNS string
	TargetGroupARN  string
	ListenerARN     string

	// service
	TaskDefinitionARN string
	ServiceARN        string

	// pipeline
	ProjectName string
}

// Provisioner executes plan steps against a control plane.
type Provisioner interface {
	// Preflight resolves the account and verifies the referenced source
	// connection is usable. Called once before the first step.
	Preflight(ctx context.Context, plan *stack.Plan, state *State) error

	// ApplyStep provisions all resources of one graph node, mutating state
	// with the identifiers later steps need.
	ApplyStep(ctx context.Context, plan *stack.Plan, step stack.Step, state *State) ([]domain.Resource, error)

	// DestroyStep removes the resources one graph node created. Resources
	// already gone are not an error.
	DestroyStep(ctx context.Context, plan *stack.Plan, step stack.Step, resources []domain.Resource) error
}

// =============================================================================
// Topology
// =============================================================================

// Config tunes the topology provisioner.
type Config struct {
	// PollInterval is the delay between waiter polls.
	PollInterval time.Duration
	// PollAttempts bounds each waiter.
	PollAttempts int
	// RetryAttempts bounds retries for propagation-class failures.
	RetryAttempts int
	// StartInitialBuild triggers a first build after the pipeline is created,
	// so the service has an image to run without waiting for a push.
	StartInitialBuild bool
}

// DefaultConfig returns default provisioner configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval:      5 * time.Second,
		PollAttempts:      60,
		RetryAttempts:     8,
		StartInitialBuild: true,
	}
}

// Topology provisions the deployment topology on AWS.
type Topology struct {
	clients *Clients
	region  string
	config  Config
	logger  *slog.Logger
}

// NewTopology creates a topology provisioner.
func NewTopology(clients *Clients, region string, config Config, logger *slog.Logger) *Topology {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.PollAttempts == 0 {
		config.PollAttempts = 60
	}
	if config.RetryAttempts == 0 {
		config.RetryAttempts = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Topology{
		clients: clients,
		region:  region,
		config:  config,
		logger:  logger.With("provider", "aws"),
	}
}

// Preflight resolves the account ID and checks the source connection.
func (t *Topology) Preflight(ctx context.Context, plan *stack.Plan, state *State) error {
	accountID, err := t.accountID(ctx)
	if err != nil {
		return err
	}
	state.AccountID = accountID

	if err := t.verifyConnection(ctx, plan.Spec.ConnectionARN); err != nil {
		return err
	}

	t.logger.Info("preflight complete", "account_id", accountID, "region", t.region)
	return nil
}

// ApplyStep provisions one graph node.
func (t *Topology) ApplyStep(ctx context.Context, plan *stack.Plan, step stack.Step, state *State) ([]domain.Resource, error) {
	switch step.Kind {
	case stack.NodeNetwork:
		return t.ensureNetwork(ctx, plan, state)
	case stack.NodeRegistry:
		return t.ensureRegistry(ctx, plan, state)
	case stack.NodeCluster:
		return t.ensureCluster(ctx, plan, state)
	case stack.NodeIAM:
		return t.ensureRoles(ctx, plan, state)
	case stack.NodeLoadBalancer:
		return t.ensureLoadBalancer(ctx, plan, state)
	case stack.NodeService:
		return t.ensureService(ctx, plan, state)
	case stack.NodePipeline:
		return t.ensurePipeline(ctx, plan, state)
	default:
		return nil, fmt.Errorf("unknown plan step: %s", step.Kind)
	}
}

// DestroyStep tears down one graph node.
func (t *Topology) DestroyStep(ctx context.Context, plan *stack.Plan, step stack.Step, resources []domain.Resource) error {
	switch step.Kind {
	case stack.NodeNetwork:
		return t.destroyNetwork(ctx, resources)
	case stack.NodeRegistry:
		return t.destroyRegistry(ctx, plan)
	case stack.NodeCluster:
		return t.destroyCluster(ctx, plan)
	case stack.NodeIAM:
		return t.destroyRoles(ctx, plan)
	case stack.NodeLoadBalancer:
		return t.destroyLoadBalancer(ctx, resources)
	case stack.NodeService:
		return t.destroyService(ctx, plan)
	case stack.NodePipeline:
		return t.destroyPipeline(ctx, plan)
	default:
		return fmt.Errorf("unknown plan step: %s", step.Kind)
	}
}

// providerID returns the provider ID of the first resource of a kind, or "".
func providerID(resources []domain.Resource, kind string) string {
	for _, r := range resources {
		if r.Kind == kind {
			return r.ProviderID
		}
	}
	return ""
}

// providerIDs returns all provider IDs of a kind, in recorded order.
func providerIDs(resources []domain.Resource, kind string) []string {
	var ids []string
	for _, r := range resources {
		if r.Kind == kind {
			ids = append(ids, r.ProviderID)
		}
	}
	return ids
}
