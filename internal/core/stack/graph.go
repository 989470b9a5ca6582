package stack

import "github.com/slipway-sh/slipway/internal/core/domain"

// =============================================================================
// Resource Graph
// =============================================================================

// NodeKind identifies one node of the deployment topology graph.
type NodeKind string

const (
	NodeNetwork      NodeKind = "network"
	NodeRegistry     NodeKind = "registry"
	NodeCluster      NodeKind = "cluster"
	NodeIAM          NodeKind = "iam"
	NodeLoadBalancer NodeKind = "loadbalancer"
	NodeService      NodeKind = "service"
	NodePipeline     NodeKind = "pipeline"
)

// Node is a vertex of the topology graph: a managed resource group and the
// nodes whose outputs it consumes.
type Node struct {
	Kind      NodeKind
	DependsOn []NodeKind
}

// topologyNodes is the fixed resource graph of the deployment topology.
// Declaration order is the tiebreak for ordering, which keeps plans stable.
var topologyNodes = []Node{
	{Kind: NodeNetwork},
	{Kind: NodeRegistry},
	{Kind: NodeCluster},
	{Kind: NodeIAM, DependsOn: []NodeKind{NodeRegistry}},
	{Kind: NodeLoadBalancer, DependsOn: []NodeKind{NodeNetwork}},
	{Kind: NodeService, DependsOn: []NodeKind{NodeNetwork, NodeCluster, NodeIAM, NodeLoadBalancer, NodeRegistry}},
	{Kind: NodePipeline, DependsOn: []NodeKind{NodeRegistry, NodeIAM, NodeService}},
}

// resourceNodes maps each recorded resource kind to the graph node that
// manages it, so destroy can hand every stored resource to the right step.
var resourceNodes = map[string]NodeKind{
	domain.ResourceVPC:             NodeNetwork,
	domain.ResourceSubnet:          NodeNetwork,
	domain.ResourceInternetGateway: NodeNetwork,
	domain.ResourceRouteTable:      NodeNetwork,
	domain.ResourceSecurityGroup:   NodeNetwork,
	domain.ResourceRepository:      NodeRegistry,
	domain.ResourceCluster:         NodeCluster,
	domain.ResourceRole:            NodeIAM,
	domain.ResourceLoadBalancer:    NodeLoadBalancer,
	domain.ResourceTargetGroup:     NodeLoadBalancer,
	domain.ResourceListener:        NodeLoadBalancer,
	domain.ResourceTaskDefinition:  NodeService,
	domain.ResourceService:         NodeService,
	domain.ResourceBuildProject:    NodePipeline,
	domain.ResourceWebhook:         NodePipeline,
}

// NodeForResource returns the graph node that manages a resource kind, and
// false for kinds the graph does not know.
func NodeForResource(kind string) (NodeKind, bool) {
	node, ok := resourceNodes[kind]
	return node, ok
}

// TopologyNodes returns the resource graph in declaration order.
func TopologyNodes() []Node {
	nodes := make([]Node, len(topologyNodes))
	copy(nodes, topologyNodes)
	return nodes
}

// OrderNodes sorts graph nodes so every node comes after its dependencies,
// using Kahn's algorithm:
//  1. Compute each node's in-degree from its DependsOn list
//  2. Seed the queue with zero-degree nodes, in declaration order
//  3. Pop, emit, and decrement dependents; enqueue them when they reach zero
//
// The graph is fixed and acyclic by construction. If a cycle were introduced,
// remaining nodes are appended in declaration order as a fallback rather than
// dropped.
func OrderNodes(nodes []Node) []Node {
	if len(nodes) == 0 {
		return nodes
	}

	nodeMap := make(map[NodeKind]Node, len(nodes))
	inDegree := make(map[NodeKind]int, len(nodes))
	dependents := make(map[NodeKind][]NodeKind)

	for _, n := range nodes {
		nodeMap[n.Kind] = n
		inDegree[n.Kind] = len(n.DependsOn)
		for _, dep := range n.DependsOn {
			dependents[dep] = append(dependents[dep], n.Kind)
		}
	}

	// Seed in declaration order so output is deterministic.
	var queue []NodeKind
	for _, n := range nodes {
		if inDegree[n.Kind] == 0 {
			queue = append(queue, n.Kind)
		}
	}

	var result []Node
	emitted := make(map[NodeKind]bool, len(nodes))
	for len(queue) > 0 {
		kind := queue[0]
		queue = queue[1:]

		result = append(result, nodeMap[kind])
		emitted[kind] = true

		for _, dep := range dependents[kind] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Cycle fallback: append whatever did not order.
	if len(result) < len(nodes) {
		for _, n := range nodes {
			if !emitted[n.Kind] {
				result = append(result, n)
			}
		}
	}

	return result
}

// ReverseNodes returns the nodes in reverse order. Destroy walks the graph
// backwards so nothing is deleted while a dependent still references it.
func ReverseNodes(nodes []Node) []Node {
	reversed := make([]Node, len(nodes))
	for i, n := range nodes {
		reversed[len(nodes)-1-i] = n
	}
	return reversed
}
