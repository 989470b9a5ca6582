package stack

// =============================================================================
// Plan Building
// =============================================================================

// Step is one planned unit of work: provision (or destroy) all resources of
// one graph node. This is the pure output of planning, ready for the shell
// to execute.
type Step struct {
	Kind        NodeKind
	Description string
}

// Plan is an ordered realization of the topology graph for one spec.
type Plan struct {
	Spec  Spec
	Names Names
	Steps []Step
}

// stepDescriptions maps each node to the step text surfaced in status output.
var stepDescriptions = map[NodeKind]string{
	NodeNetwork:      "Creating network (VPC, subnets, security groups)",
	NodeRegistry:     "Creating image repository",
	NodeCluster:      "Creating container service cluster",
	NodeIAM:          "Creating IAM roles and permissions",
	NodeLoadBalancer: "Creating load balancer",
	NodeService:      "Creating load-balanced service",
	NodePipeline:     "Creating build pipeline",
}

// BuildPlan validates the spec and produces the ordered apply plan.
// This is a pure function - the same spec always yields the same plan.
func BuildPlan(spec Spec) (*Plan, error) {
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	ordered := OrderNodes(TopologyNodes())
	steps := make([]Step, 0, len(ordered))
	for _, node := range ordered {
		steps = append(steps, Step{
			Kind:        node.Kind,
			Description: stepDescriptions[node.Kind],
		})
	}

	return &Plan{
		Spec:  spec,
		Names: DeriveNames(spec.Name),
		Steps: steps,
	}, nil
}

// DestroySteps returns the plan's steps in teardown order.
func (p *Plan) DestroySteps() []Step {
	reversed := make([]Step, len(p.Steps))
	for i, s := range p.Steps {
		reversed[len(p.Steps)-1-i] = s
	}
	return reversed
}
