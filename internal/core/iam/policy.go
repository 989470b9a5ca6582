// Package iam contains pure builders for IAM policy documents.
// This is part of the Functional Core - all functions are pure with no I/O.
// Policy documents are a JSON wire format defined by the cloud provider;
// the shell submits the marshaled form verbatim.
package iam

import "encoding/json"

// =============================================================================
// Policy Document Types
// =============================================================================

// PolicyVersion is the only policy language version AWS accepts for new
// documents.
const PolicyVersion = "2012-10-17"

// Service principals used by this topology.
const (
	ServiceCodeBuild = "codebuild.amazonaws.com"
	ServiceECSTasks  = "ecs-tasks.amazonaws.com"
)

// TaskExecutionManagedPolicyARN is the AWS-managed policy granting image pull
// and log write rights to the task execution role. Attached rather than
// duplicated inline.
const TaskExecutionManagedPolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

// Document is an IAM policy document.
type Document struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

// Statement is one statement of a policy document.
type Statement struct {
	Sid       string     `json:"Sid,omitempty"`
	Effect    string     `json:"Effect"`
	Principal *Principal `json:"Principal,omitempty"`
	Action    []string   `json:"Action"`
	Resource  []string   `json:"Resource,omitempty"`
}

// Principal identifies who a trust statement applies to.
type Principal struct {
	Service string `json:"Service"`
}

// Marshal renders the document as the JSON string the control plane accepts.
func (d Document) Marshal() (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// =============================================================================
// Document Builders
// =============================================================================

// AssumeRolePolicy builds the trust document letting a service principal
// assume a role.
func AssumeRolePolicy(servicePrincipal string) Document {
	return Document{
		Version: PolicyVersion,
		Statement: []Statement{
			{
				Effect:    "Allow",
				Principal: &Principal{Service: servicePrincipal},
				Action:    []string{"sts:AssumeRole"},
			},
		},
	}
}

// BuildProjectPolicyParams carries the ARNs the build project's policy
// references. All are derived from the stack spec and account ID.
type BuildProjectPolicyParams struct {
	RepositoryARN string // image repository the build pushes to
	ServiceARN    string // container service the build redeploys
	ExecRoleARN   string // execution role passed when registering task state
	LogGroupARNs  []string
}

// BuildProjectPolicy builds the permission document for the build project's
// role: push images, write build logs, and force a new deployment of the
// service. GetAuthorizationToken does not support resource scoping, so that
// single action is granted on "*".
func BuildProjectPolicy(p BuildProjectPolicyParams) Document {
	return Document{
		Version: PolicyVersion,
		Statement: []Statement{
			{
				Sid:      "EcrAuth",
				Effect:   "Allow",
				Action:   []string{"ecr:GetAuthorizationToken"},
				Resource: []string{"*"},
			},
			{
				Sid:    "EcrPush",
				Effect: "Allow",
				Action: []string{
					"ecr:BatchCheckLayerAvailability",
					"ecr:BatchGetImage",
					"ecr:GetDownloadUrlForLayer",
					"ecr:InitiateLayerUpload",
					"ecr:UploadLayerPart",
					"ecr:CompleteLayerUpload",
					"ecr:PutImage",
				},
				Resource: []string{p.RepositoryARN},
			},
			{
				Sid:    "BuildLogs",
				Effect: "Allow",
				Action: []string{
					"logs:CreateLogGroup",
					"logs:CreateLogStream",
					"logs:PutLogEvents",
				},
				Resource: p.LogGroupARNs,
			},
			{
				Sid:    "RedeployService",
				Effect: "Allow",
				Action: []string{
					"ecs:DescribeServices",
					"ecs:UpdateService",
				},
				Resource: []string{p.ServiceARN},
			},
			{
				Sid:      "PassExecutionRole",
				Effect:   "Allow",
				Action:   []string{"iam:PassRole"},
				Resource: []string{p.ExecRoleARN},
			},
		},
	}
}
