package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/core/domain"
)

// indexOf returns the position of a node kind in an ordered slice.
func indexOf(t *testing.T, nodes []Node, kind NodeKind) int {
	t.Helper()
	for i, n := range nodes {
		if n.Kind == kind {
			return i
		}
	}
	t.Fatalf("node %s not found", kind)
	return -1
}

func TestOrderNodes_RespectsDependencies(t *testing.T) {
	ordered := OrderNodes(TopologyNodes())
	require.Len(t, ordered, len(TopologyNodes()))

	for _, n := range ordered {
		pos := indexOf(t, ordered, n.Kind)
		for _, dep := range n.DependsOn {
			assert.Less(t, indexOf(t, ordered, dep), pos,
				"%s must come after %s", n.Kind, dep)
		}
	}
}

func TestOrderNodes_Deterministic(t *testing.T) {
	first := OrderNodes(TopologyNodes())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, OrderNodes(TopologyNodes()))
	}
}

func TestOrderNodes_Empty(t *testing.T) {
	assert.Empty(t, OrderNodes(nil))
}

func TestOrderNodes_CycleFallback(t *testing.T) {
	// A cycle cannot occur in the fixed topology; the sort still must not
	// drop nodes if one were introduced.
	cyclic := []Node{
		{Kind: "a", DependsOn: []NodeKind{"b"}},
		{Kind: "b", DependsOn: []NodeKind{"a"}},
		{Kind: "c"},
	}
	ordered := OrderNodes(cyclic)
	require.Len(t, ordered, 3)
	assert.Equal(t, NodeKind("c"), ordered[0].Kind)
}

func TestNodeForResource(t *testing.T) {
	kinds := []string{
		domain.ResourceVPC, domain.ResourceSubnet, domain.ResourceInternetGateway,
		domain.ResourceRouteTable, domain.ResourceSecurityGroup,
		domain.ResourceRepository, domain.ResourceCluster, domain.ResourceRole,
		domain.ResourceLoadBalancer, domain.ResourceTargetGroup, domain.ResourceListener,
		domain.ResourceTaskDefinition, domain.ResourceService,
		domain.ResourceBuildProject, domain.ResourceWebhook,
	}
	for _, kind := range kinds {
		_, ok := NodeForResource(kind)
		assert.True(t, ok, "unmapped resource kind %s", kind)
	}

	node, ok := NodeForResource(domain.ResourceTargetGroup)
	require.True(t, ok)
	assert.Equal(t, NodeLoadBalancer, node)

	_, ok = NodeForResource("floppy_disk")
	assert.False(t, ok)
}

func TestReverseNodes(t *testing.T) {
	ordered := OrderNodes(TopologyNodes())
	reversed := ReverseNodes(ordered)

	require.Len(t, reversed, len(ordered))
	for i := range ordered {
		assert.Equal(t, ordered[i].Kind, reversed[len(reversed)-1-i].Kind)
	}

	// Service is destroyed before the cluster and load balancer it uses.
	assert.Less(t,
		indexOf(t, reversed, NodeService),
		indexOf(t, reversed, NodeCluster))
	assert.Less(t,
		indexOf(t, reversed, NodeService),
		indexOf(t, reversed, NodeLoadBalancer))
	// Pipeline goes first: nothing references it.
	assert.Equal(t, NodePipeline, reversed[0].Kind)
}
