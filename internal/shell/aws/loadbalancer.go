package aws

import (
	"context"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbtypes "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

// =============================================================================
// Load Balancer Apply
// =============================================================================

// ensureLoadBalancer provisions the internet-facing load balancer, its target
// group, and the HTTP listener. Health checking is owned by the target group;
// the tool only declares the path.
func (t *Topology) ensureLoadBalancer(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	names := plan.Names
	spec := plan.Spec
	var resources []domain.Resource

	lbARN, lbDNS, err := t.findOrCreateLoadBalancer(ctx, names.LoadBalancer, state)
	if err != nil {
		return nil, err
	}
	state.LoadBalancerARN = lbARN
	state.LoadBalancerDNS = lbDNS
	resources = append(resources, domain.Resource{Kind: domain.ResourceLoadBalancer, Name: names.LoadBalancer, ProviderID: lbARN})

	tgARN, err := t.findOrCreateTargetGroup(ctx, names.TargetGroup, spec, state)
	if err != nil {
		return resources, err
	}
	state.TargetGroupARN = tgARN
	resources = append(resources, domain.Resource{Kind: domain.ResourceTargetGroup, Name: names.TargetGroup, ProviderID: tgARN})

	listenerARN, err := t.ensureListener(ctx, lbARN, tgARN)
	if err != nil {
		return resources, err
	}
	state.ListenerARN = listenerARN
	resources = append(resources, domain.Resource{Kind: domain.ResourceListener, Name: names.LoadBalancer + "-http", ProviderID: listenerARN})

	if err := t.waitForLoadBalancerActive(ctx, lbARN); err != nil {
		return resources, err
	}

	t.logger.Info("load balancer ready", "dns", lbDNS)
	return resources, nil
}

func (t *Topology) findOrCreateLoadBalancer(ctx context.Context, name string, state *State) (string, string, error) {
	descOut, err := t.clients.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err == nil && len(descOut.LoadBalancers) > 0 {
		lb := descOut.LoadBalancers[0]
		return awssdk.ToString(lb.LoadBalancerArn), awssdk.ToString(lb.DNSName), nil
	}
	if err != nil && !isNotFound(err) {
		return "", "", fmt.Errorf("failed to look up load balancer %s: %w", name, err)
	}

	out, err := t.clients.ELB.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           str(name),
		Scheme:         elbtypes.LoadBalancerSchemeEnumInternetFacing,
		Type:           elbtypes.LoadBalancerTypeEnumApplication,
		IpAddressType:  elbtypes.IpAddressTypeIpv4,
		Subnets:        state.SubnetIDs,
		SecurityGroups: []string{state.ALBSecurityGroupID},
		Tags: []elbtypes.Tag{
			{Key: str("ManagedBy"), Value: str("slipway")},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to create load balancer %s: %w", name, err)
	}
	lb := out.LoadBalancers[0]
	return awssdk.ToString(lb.LoadBalancerArn), awssdk.ToString(lb.DNSName), nil
}

func (t *Topology) findOrCreateTargetGroup(ctx context.Context, name string, spec stack.Spec, state *State) (string, error) {
	descOut, err := t.clients.ELB.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{name},
	})
	if err == nil && len(descOut.TargetGroups) > 0 {
		return awssdk.ToString(descOut.TargetGroups[0].TargetGroupArn), nil
	}
	if err != nil && !isNotFound(err) {
		return "", fmt.Errorf("failed to look up target group %s: %w", name, err)
	}

	out, err := t.clients.ELB.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:       str(name),
		Protocol:   elbtypes.ProtocolEnumHttp,
		Port:       i32(spec.ContainerPort),
		VpcId:      str(state.VpcID),
		TargetType: elbtypes.TargetTypeEnumIp, // Fargate tasks register by ENI address
		HealthCheckProtocol:        elbtypes.ProtocolEnumHttp,
		HealthCheckPath:            str(spec.HealthCheckPath),
		HealthCheckIntervalSeconds: i32(30),
		HealthyThresholdCount:      i32(2),
		UnhealthyThresholdCount:    i32(3),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create target group %s: %w", name, err)
	}
	return awssdk.ToString(out.TargetGroups[0].TargetGroupArn), nil
}

func (t *Topology) ensureListener(ctx context.Context, lbARN, tgARN string) (string, error) {
	descOut, err := t.clients.ELB.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: str(lbARN),
	})
	if err == nil {
		for _, l := range descOut.Listeners {
			if awssdk.ToInt32(l.Port) == 80 {
				return awssdk.ToString(l.ListenerArn), nil
			}
		}
	}

	out, err := t.clients.ELB.CreateListener(ctx, &elbv2.CreateListenerInput{
		LoadBalancerArn: str(lbARN),
		Protocol:        elbtypes.ProtocolEnumHttp,
		Port:            i32(80),
		DefaultActions: []elbtypes.Action{
			{
				Type:           elbtypes.ActionTypeEnumForward,
				TargetGroupArn: str(tgARN),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create listener: %w", err)
	}
	return awssdk.ToString(out.Listeners[0].ListenerArn), nil
}

func (t *Topology) waitForLoadBalancerActive(ctx context.Context, lbARN string) error {
	for i := 0; i < t.config.PollAttempts; i++ {
		out, err := t.clients.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
			LoadBalancerArns: []string{lbARN},
		})
		if err == nil && len(out.LoadBalancers) > 0 {
			switch out.LoadBalancers[0].State.Code {
			case elbtypes.LoadBalancerStateEnumActive:
				return nil
			case elbtypes.LoadBalancerStateEnumFailed:
				return fmt.Errorf("load balancer %s entered failed state", lbARN)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.PollInterval):
		}
	}
	return fmt.Errorf("timed out waiting for load balancer %s to become active", lbARN)
}

// =============================================================================
// Load Balancer Destroy
// =============================================================================

// destroyLoadBalancer removes listener, load balancer, and target group. The
// target group goes last: it cannot be deleted while a listener forwards to it.
func (t *Topology) destroyLoadBalancer(ctx context.Context, resources []domain.Resource) error {
	if listenerARN := providerID(resources, domain.ResourceListener); listenerARN != "" {
		_, err := t.clients.ELB.DeleteListener(ctx, &elbv2.DeleteListenerInput{ListenerArn: str(listenerARN)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete listener: %w", err)
		}
	}

	lbARN := providerID(resources, domain.ResourceLoadBalancer)
	if lbARN != "" {
		_, err := t.clients.ELB.DeleteLoadBalancer(ctx, &elbv2.DeleteLoadBalancerInput{LoadBalancerArn: str(lbARN)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete load balancer: %w", err)
		}
		if err := t.waitForLoadBalancerGone(ctx, lbARN); err != nil {
			return err
		}
		t.logger.Info("load balancer deleted", "arn", lbARN)
	}

	if tgARN := providerID(resources, domain.ResourceTargetGroup); tgARN != "" {
		err := retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
			_, err := t.clients.ELB.DeleteTargetGroup(ctx, &elbv2.DeleteTargetGroupInput{TargetGroupArn: str(tgARN)})
			return err
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete target group: %w", err)
		}
	}

	return nil
}

func (t *Topology) waitForLoadBalancerGone(ctx context.Context, lbARN string) error {
	for i := 0; i < t.config.PollAttempts; i++ {
		_, err := t.clients.ELB.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
			LoadBalancerArns: []string{lbARN},
		})
		if err != nil && isNotFound(err) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.PollInterval):
		}
	}
	return fmt.Errorf("timed out waiting for load balancer %s to be deleted", lbARN)
}
