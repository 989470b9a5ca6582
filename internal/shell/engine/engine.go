// Package engine drives stack lifecycles: it walks plans step by step against
// a provisioner, persisting status and recorded resources after every step so
// an interrupted run can be resumed or torn down.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
	"github.com/slipway-sh/slipway/internal/shell/aws"
	"github.com/slipway-sh/slipway/internal/shell/store"
)

var (
	// ErrStackBusy means another operation holds the stack (it is being
	// destroyed) and apply must wait.
	ErrStackBusy = errors.New("stack is being destroyed")
	// ErrStackGone means the stack was already destroyed or never existed.
	ErrStackGone = errors.New("stack not found")
)

// Engine applies and destroys stacks.
type Engine struct {
	store  store.Store
	prov   aws.Provisioner
	logger *slog.Logger
}

// New creates an engine.
func New(s store.Store, prov aws.Provisioner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  s,
		prov:   prov,
		logger: logger.With("component", "engine"),
	}
}

// =============================================================================
// Apply
// =============================================================================

// Up provisions the topology a spec describes and returns the ready stack.
// The operation is idempotent: re-running it against an existing stack
// adopts what is already there and converges the rest.
func (e *Engine) Up(ctx context.Context, spec stack.Spec) (*domain.Stack, error) {
	plan, err := stack.BuildPlan(spec)
	if err != nil {
		return nil, err
	}

	st, err := e.resolveStack(ctx, plan.Spec)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("stack_id", st.ReferenceID, "stack", st.Name)

	if err := st.Transition(domain.StackStatusPlanning); err != nil && st.Status != domain.StackStatusPlanning {
		return nil, fmt.Errorf("stack %s is %s: %w", st.Name, st.Status, err)
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return nil, err
	}

	state := &aws.State{}
	if err := e.prov.Preflight(ctx, plan, state); err != nil {
		return st, e.fail(ctx, st, logger, err)
	}

	if err := st.Transition(domain.StackStatusProvisioning); err != nil {
		return st, err
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return st, err
	}

	// Each run re-executes every step and re-records what it finds, so stale
	// records from a previous attempt are dropped up front.
	if err := e.store.DeleteResources(ctx, st.ReferenceID); err != nil {
		return st, err
	}

	for _, step := range plan.Steps {
		logger.Info("applying step", "step", step.Kind)
		st.SetStep(step.Description)
		if err := e.store.UpdateStack(ctx, st); err != nil {
			return st, err
		}

		// Steps return what they created even when they fail partway, so the
		// records land before the error is handled and teardown can find them.
		resources, stepErr := e.prov.ApplyStep(ctx, plan, step, state)
		if err := e.store.AddResources(ctx, st.ReferenceID, resources); err != nil {
			return st, err
		}
		if stepErr != nil {
			return st, e.fail(ctx, st, logger, fmt.Errorf("%s: %w", step.Kind, stepErr))
		}
	}

	st.SetOutput(domain.OutputLoadBalancerDNS, state.LoadBalancerDNS)
	st.SetOutput(domain.OutputRepositoryURI, state.RepositoryURI)
	st.SetOutput(domain.OutputBuildProject, state.ProjectName)
	st.SetOutput(domain.OutputClusterName, plan.Names.Cluster)
	st.SetOutput(domain.OutputServiceName, plan.Names.Service)
	st.SetStep("")

	if err := st.Transition(domain.StackStatusReady); err != nil {
		return st, err
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return st, err
	}

	logger.Info("stack ready", "load_balancer_dns", state.LoadBalancerDNS)
	return st, nil
}

// resolveStack finds the stack record for a spec, creating one on first
// apply and reviving or resetting an existing record otherwise.
func (e *Engine) resolveStack(ctx context.Context, spec stack.Spec) (*domain.Stack, error) {
	st, err := e.store.GetStackByName(ctx, spec.Name)
	if errors.Is(err, store.ErrNotFound) {
		st, err = domain.NewStack(spec.Name, spec.Region, spec.ConnectionARN,
			spec.RepoOwner, spec.RepoName, spec.Branch)
		if err != nil {
			return nil, err
		}
		if err := e.store.CreateStack(ctx, st); err != nil {
			return nil, err
		}
		return st, nil
	}
	if err != nil {
		return nil, err
	}

	switch st.Status {
	case domain.StackStatusDestroying:
		return nil, fmt.Errorf("%w: %s", ErrStackBusy, st.Name)
	case domain.StackStatusDestroyed:
		if err := st.Reset(); err != nil {
			return nil, err
		}
	case domain.StackStatusFailed:
		if err := st.Transition(domain.StackStatusPending); err != nil {
			return nil, err
		}
	}

	// Source parameters may have changed since the last apply.
	st.Region = spec.Region
	st.ConnectionARN = spec.ConnectionARN
	st.RepoOwner = spec.RepoOwner
	st.RepoName = spec.RepoName
	st.Branch = spec.Branch
	return st, nil
}

func (e *Engine) fail(ctx context.Context, st *domain.Stack, logger *slog.Logger, cause error) error {
	logger.Error("apply failed", "step", st.CurrentStep, "error", cause)
	if err := st.TransitionToFailed(cause.Error()); err != nil {
		return cause
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		logger.Error("failed to persist failure", "error", err)
	}
	return cause
}

// =============================================================================
// Destroy
// =============================================================================

// Down tears down a stack's resources in reverse apply order. Resources the
// control plane no longer knows are skipped, so a partial destroy can be
// re-run to completion.
func (e *Engine) Down(ctx context.Context, name string) error {
	st, err := e.store.GetStackByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrStackGone, name)
	}
	if err != nil {
		return err
	}
	if st.Status == domain.StackStatusDestroyed {
		return fmt.Errorf("%w: %s", ErrStackGone, name)
	}
	logger := e.logger.With("stack_id", st.ReferenceID, "stack", st.Name)

	// Destroy only needs names and recorded provider IDs, so the plan is
	// rebuilt from the stored parameters with defaults for the rest.
	plan, err := stack.BuildPlan(stack.Spec{
		Name:          st.Name,
		Region:        st.Region,
		ConnectionARN: st.ConnectionARN,
		RepoOwner:     st.RepoOwner,
		RepoName:      st.RepoName,
		Branch:        st.Branch,
	})
	if err != nil {
		return err
	}

	if err := st.Transition(domain.StackStatusDestroying); err != nil {
		return fmt.Errorf("stack %s is %s: %w", st.Name, st.Status, err)
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return err
	}

	resources, err := e.store.ListResources(ctx, st.ReferenceID)
	if err != nil {
		return err
	}
	byNode := make(map[stack.NodeKind][]domain.Resource)
	for _, r := range resources {
		node, ok := stack.NodeForResource(r.Kind)
		if !ok {
			logger.Warn("skipping resource of unknown kind", "kind", r.Kind, "name", r.Name)
			continue
		}
		byNode[node] = append(byNode[node], r)
	}

	for _, step := range plan.DestroySteps() {
		logger.Info("destroying step", "step", step.Kind)
		st.SetStep(fmt.Sprintf("Removing %s", step.Kind))
		if err := e.store.UpdateStack(ctx, st); err != nil {
			return err
		}

		if err := e.prov.DestroyStep(ctx, plan, step, byNode[step.Kind]); err != nil {
			return e.fail(ctx, st, logger, fmt.Errorf("%s: %w", step.Kind, err))
		}
	}

	if err := e.store.DeleteResources(ctx, st.ReferenceID); err != nil {
		return err
	}

	st.SetStep("")
	if err := st.Transition(domain.StackStatusDestroyed); err != nil {
		return err
	}
	if err := e.store.UpdateStack(ctx, st); err != nil {
		return err
	}

	logger.Info("stack destroyed")
	return nil
}
