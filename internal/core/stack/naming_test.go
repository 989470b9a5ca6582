package stack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveNames(t *testing.T) {
	names := DeriveNames("demo")

	assert.Equal(t, "demo-vpc", names.VPC)
	assert.Equal(t, "demo-cluster", names.Cluster)
	assert.Equal(t, "demo-svc", names.Service)
	assert.Equal(t, "demo-task", names.TaskFamily)
	assert.Equal(t, "app", names.Container)
	assert.Equal(t, "demo-alb", names.LoadBalancer)
	assert.Equal(t, "demo-tg", names.TargetGroup)
	assert.Equal(t, "demo-alb-sg", names.ALBSecurityGroup)
	assert.Equal(t, "demo-svc-sg", names.SvcSecurityGroup)
	assert.Equal(t, "demo/app", names.Repository)
	assert.Equal(t, "demo-build", names.BuildProject)
	assert.Equal(t, "demo-build-role", names.BuildRole)
	assert.Equal(t, "demo-task-exec-role", names.TaskExecRole)
	assert.Equal(t, "/ecs/demo", names.LogGroup)
	assert.Equal(t, "/codebuild/demo-build", names.BuildLogGroup)
}

func TestDeriveNames_Deterministic(t *testing.T) {
	assert.Equal(t, DeriveNames("my-app"), DeriveNames("my-app"))
}

func TestDeriveNames_LoadBalancerNameLength(t *testing.T) {
	// The load balancer name limit is 32 characters; MaxNameLength
	// plus the longest suffix must stay inside it.
	longest := ""
	for i := 0; i < MaxNameLength; i++ {
		longest += "a"
	}
	names := DeriveNames(longest)
	assert.LessOrEqual(t, len(names.LoadBalancer), 32)
	assert.LessOrEqual(t, len(names.TargetGroup), 32)
}

func TestARNBuilders(t *testing.T) {
	assert.Equal(t,
		"arn:aws:ecr:us-east-1:123456789012:repository/demo/app",
		RepositoryARN("us-east-1", "123456789012", "demo/app"))

	assert.Equal(t,
		"arn:aws:ecs:us-east-1:123456789012:service/demo-cluster/demo-svc",
		ServiceARN("us-east-1", "123456789012", "demo-cluster", "demo-svc"))

	assert.Equal(t,
		"arn:aws:iam::123456789012:role/demo-task-exec-role",
		RoleARN("123456789012", "demo-task-exec-role"))

	assert.Equal(t,
		"arn:aws:logs:us-east-1:123456789012:log-group:/codebuild/demo-build:*",
		LogGroupARN("us-east-1", "123456789012", "/codebuild/demo-build"))
}
