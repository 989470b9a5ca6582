package stack

import "fmt"

// =============================================================================
// Resource Naming Functions
// =============================================================================

// Names holds every resource name derived from a stack name. Deriving them
// all in one place keeps apply and destroy agreeing on what to look for.
type Names struct {
	VPC              string
	Cluster          string
	Service          string
	TaskFamily       string
	Container        string
	LoadBalancer     string
	TargetGroup      string
	ALBSecurityGroup string
	SvcSecurityGroup string
	Repository       string
	BuildProject     string
	BuildRole        string
	TaskExecRole     string
	LogGroup         string
	BuildLogGroup    string
}

// DeriveNames generates all resource names for a stack.
// Pattern: {stack}-{suffix}, except the image repository which uses the
// registry's path convention {stack}/app.
//
// Example:
//
//	DeriveNames("demo").Cluster // returns "demo-cluster"
func DeriveNames(stackName string) Names {
	return Names{
		VPC:              fmt.Sprintf("%s-vpc", stackName),
		Cluster:          fmt.Sprintf("%s-cluster", stackName),
		Service:          fmt.Sprintf("%s-svc", stackName),
		TaskFamily:       fmt.Sprintf("%s-task", stackName),
		Container:        "app",
		LoadBalancer:     fmt.Sprintf("%s-alb", stackName),
		TargetGroup:      fmt.Sprintf("%s-tg", stackName),
		ALBSecurityGroup: fmt.Sprintf("%s-alb-sg", stackName),
		SvcSecurityGroup: fmt.Sprintf("%s-svc-sg", stackName),
		Repository:       fmt.Sprintf("%s/app", stackName),
		BuildProject:     fmt.Sprintf("%s-build", stackName),
		BuildRole:        fmt.Sprintf("%s-build-role", stackName),
		TaskExecRole:     fmt.Sprintf("%s-task-exec-role", stackName),
		LogGroup:         fmt.Sprintf("/ecs/%s", stackName),
		BuildLogGroup:    fmt.Sprintf("/codebuild/%s-build", stackName),
	}
}

// RepositoryARN builds the registry repository ARN for permission wiring.
func RepositoryARN(region, accountID, repository string) string {
	return fmt.Sprintf("arn:aws:ecr:%s:%s:repository/%s", region, accountID, repository)
}

// ServiceARN builds the container service ARN for permission wiring.
func ServiceARN(region, accountID, cluster, service string) string {
	return fmt.Sprintf("arn:aws:ecs:%s:%s:service/%s/%s", region, accountID, cluster, service)
}

// RoleARN builds an IAM role ARN.
func RoleARN(accountID, roleName string) string {
	return fmt.Sprintf("arn:aws:iam::%s:role/%s", accountID, roleName)
}

// LogGroupARN builds a CloudWatch Logs log group ARN, including its streams.
func LogGroupARN(region, accountID, group string) string {
	return fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s:*", region, accountID, group)
}
