// Package aws implements provisioning of the deployment topology against the
// AWS control plane. This is part of the Imperative Shell - handles I/O with
// cloud APIs.
package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/codebuild"
	"github.com/aws/aws-sdk-go-v2/service/codestarconnections"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Clients bundles the per-service API clients the topology touches.
type Clients struct {
	EC2         *ec2.Client
	ECR         *ecr.Client
	ECS         *ecs.Client
	ELB         *elasticloadbalancingv2.Client
	CodeBuild   *codebuild.Client
	IAM         *iam.Client
	STS         *sts.Client
	Connections *codestarconnections.Client
}

// NewClients builds API clients for a region. With an access key pair the
// clients use static credentials; otherwise the default provider chain
// (environment, shared config, instance role) applies.
func NewClients(ctx context.Context, region, accessKeyID, secretAccessKey string) (*Clients, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return &Clients{
		EC2:         ec2.NewFromConfig(cfg),
		ECR:         ecr.NewFromConfig(cfg),
		ECS:         ecs.NewFromConfig(cfg),
		ELB:         elasticloadbalancingv2.NewFromConfig(cfg),
		CodeBuild:   codebuild.NewFromConfig(cfg),
		IAM:         iam.NewFromConfig(cfg),
		STS:         sts.NewFromConfig(cfg),
		Connections: codestarconnections.NewFromConfig(cfg),
	}, nil
}

// str is shorthand for the SDK's string pointer helper.
func str(s string) *string {
	return awssdk.String(s)
}

func i32(v int) *int32 {
	return awssdk.Int32(int32(v))
}
