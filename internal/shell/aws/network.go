package aws

import (
	"context"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/slipway-sh/slipway/internal/core/domain"
	"github.com/slipway-sh/slipway/internal/core/stack"
)

const (
	vpcCIDR = "10.0.0.0/16"
	anyCIDR = "0.0.0.0/0"
)

var subnetCIDRs = []string{"10.0.0.0/24", "10.0.1.0/24"}

// =============================================================================
// Network Apply
// =============================================================================

// ensureNetwork provisions the VPC, two public subnets across availability
// zones, internet routing, and the two security groups. Re-running against an
// existing network adopts it by Name tag instead of creating a duplicate.
func (t *Topology) ensureNetwork(ctx context.Context, plan *stack.Plan, state *State) ([]domain.Resource, error) {
	names := plan.Names
	var resources []domain.Resource

	vpcID, created, err := t.findOrCreateVPC(ctx, names.VPC)
	if err != nil {
		return nil, err
	}
	state.VpcID = vpcID
	resources = append(resources, domain.Resource{Kind: domain.ResourceVPC, Name: names.VPC, ProviderID: vpcID})
	t.logger.Info("vpc ready", "vpc_id", vpcID, "created", created)

	// The service's tasks get public addresses; the load balancer needs
	// hostname resolution inside the VPC.
	_, err = t.clients.EC2.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              str(vpcID),
		EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)},
	})
	if err != nil {
		return resources, fmt.Errorf("failed to enable DNS hostnames on %s: %w", vpcID, err)
	}

	subnetIDs, subnetResources, err := t.ensureSubnets(ctx, vpcID, names)
	if err != nil {
		return resources, err
	}
	state.SubnetIDs = subnetIDs
	resources = append(resources, subnetResources...)

	igwID, rtbID, routingResources, err := t.ensureRouting(ctx, vpcID, subnetIDs, names)
	if err != nil {
		return resources, err
	}
	resources = append(resources, routingResources...)
	t.logger.Info("internet routing ready", "igw_id", igwID, "rtb_id", rtbID)

	albSG, err := t.findOrCreateSecurityGroup(ctx, vpcID, names.ALBSecurityGroup, "Load balancer ingress - "+names.VPC)
	if err != nil {
		return resources, err
	}
	state.ALBSecurityGroupID = albSG
	resources = append(resources, domain.Resource{Kind: domain.ResourceSecurityGroup, Name: names.ALBSecurityGroup, ProviderID: albSG})

	svcSG, err := t.findOrCreateSecurityGroup(ctx, vpcID, names.SvcSecurityGroup, "Service ingress - "+names.VPC)
	if err != nil {
		return resources, err
	}
	state.SvcSecurityGroupID = svcSG
	resources = append(resources, domain.Resource{Kind: domain.ResourceSecurityGroup, Name: names.SvcSecurityGroup, ProviderID: svcSG})

	// ALB accepts HTTP from anywhere; the service accepts the container port
	// from the ALB only.
	_, err = t.clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: str(albSG),
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: str("tcp"),
				FromPort:   i32(80),
				ToPort:     i32(80),
				IpRanges:   []ec2types.IpRange{{CidrIp: str(anyCIDR), Description: str("HTTP")}},
			},
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return resources, fmt.Errorf("failed to configure load balancer security group: %w", err)
	}

	_, err = t.clients.EC2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: str(svcSG),
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: str("tcp"),
				FromPort:   i32(plan.Spec.ContainerPort),
				ToPort:     i32(plan.Spec.ContainerPort),
				UserIdGroupPairs: []ec2types.UserIdGroupPair{
					{GroupId: str(albSG), Description: str("From load balancer")},
				},
			},
		},
	})
	if err != nil && !isAlreadyExists(err) {
		return resources, fmt.Errorf("failed to configure service security group: %w", err)
	}

	return resources, nil
}

// findOrCreateVPC adopts a VPC tagged with the stack's name or creates one.
func (t *Topology) findOrCreateVPC(ctx context.Context, name string) (string, bool, error) {
	out, err := t.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: str("tag:Name"), Values: []string{name}},
			{Name: str("state"), Values: []string{"available", "pending"}},
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to look up VPC %s: %w", name, err)
	}
	if len(out.Vpcs) > 0 {
		return awssdk.ToString(out.Vpcs[0].VpcId), false, nil
	}

	createOut, err := t.clients.EC2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:         str(vpcCIDR),
		TagSpecifications: tagSpec(ec2types.ResourceTypeVpc, name),
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to create VPC %s: %w", name, err)
	}
	vpcID := awssdk.ToString(createOut.Vpc.VpcId)

	if err := t.waitForVPC(ctx, vpcID); err != nil {
		return "", false, err
	}
	return vpcID, true, nil
}

func (t *Topology) waitForVPC(ctx context.Context, vpcID string) error {
	for i := 0; i < t.config.PollAttempts; i++ {
		out, err := t.clients.EC2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
		if err == nil && len(out.Vpcs) > 0 && out.Vpcs[0].State == ec2types.VpcStateAvailable {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.PollInterval):
		}
	}
	return fmt.Errorf("timed out waiting for VPC %s to become available", vpcID)
}

// ensureSubnets creates one public subnet per CIDR, spread over availability
// zones, adopting any that already exist in the VPC.
func (t *Topology) ensureSubnets(ctx context.Context, vpcID string, names stack.Names) ([]string, []domain.Resource, error) {
	existing, err := t.clients.EC2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{{Name: str("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list subnets in %s: %w", vpcID, err)
	}
	byCIDR := make(map[string]string, len(existing.Subnets))
	for _, sn := range existing.Subnets {
		byCIDR[awssdk.ToString(sn.CidrBlock)] = awssdk.ToString(sn.SubnetId)
	}

	azOut, err := t.clients.EC2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{{Name: str("state"), Values: []string{"available"}}},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list availability zones: %w", err)
	}
	if len(azOut.AvailabilityZones) < len(subnetCIDRs) {
		return nil, nil, errors.New("region does not have enough availability zones for the load balancer")
	}

	var subnetIDs []string
	var resources []domain.Resource
	for i, cidr := range subnetCIDRs {
		name := fmt.Sprintf("%s-public-%d", names.VPC, i+1)
		if id, ok := byCIDR[cidr]; ok {
			subnetIDs = append(subnetIDs, id)
			resources = append(resources, domain.Resource{Kind: domain.ResourceSubnet, Name: name, ProviderID: id})
			continue
		}

		out, err := t.clients.EC2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
			VpcId:             str(vpcID),
			CidrBlock:         str(cidr),
			AvailabilityZone:  azOut.AvailabilityZones[i].ZoneName,
			TagSpecifications: tagSpec(ec2types.ResourceTypeSubnet, name),
		})
		if err != nil {
			return nil, resources, fmt.Errorf("failed to create subnet %s: %w", cidr, err)
		}
		id := awssdk.ToString(out.Subnet.SubnetId)

		_, err = t.clients.EC2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            str(id),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)},
		})
		if err != nil {
			return nil, resources, fmt.Errorf("failed to enable public IPs on subnet %s: %w", id, err)
		}

		subnetIDs = append(subnetIDs, id)
		resources = append(resources, domain.Resource{Kind: domain.ResourceSubnet, Name: name, ProviderID: id})
	}

	return subnetIDs, resources, nil
}

// ensureRouting attaches an internet gateway and routes the subnets through it.
func (t *Topology) ensureRouting(ctx context.Context, vpcID string, subnetIDs []string, names stack.Names) (string, string, []domain.Resource, error) {
	var resources []domain.Resource

	igwID, err := t.findOrCreateInternetGateway(ctx, vpcID, names.VPC+"-igw")
	if err != nil {
		return "", "", nil, err
	}
	resources = append(resources, domain.Resource{Kind: domain.ResourceInternetGateway, Name: names.VPC + "-igw", ProviderID: igwID})

	rtbName := names.VPC + "-public-rt"
	rtbID, err := t.findOrCreateRouteTable(ctx, vpcID, rtbName)
	if err != nil {
		return "", "", resources, err
	}
	resources = append(resources, domain.Resource{Kind: domain.ResourceRouteTable, Name: rtbName, ProviderID: rtbID})

	_, err = t.clients.EC2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         str(rtbID),
		DestinationCidrBlock: str(anyCIDR),
		GatewayId:            str(igwID),
	})
	if err != nil && errorCode(err) != "RouteAlreadyExists" {
		return "", "", resources, fmt.Errorf("failed to create default route: %w", err)
	}

	for _, subnetID := range subnetIDs {
		_, err = t.clients.EC2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
			RouteTableId: str(rtbID),
			SubnetId:     str(subnetID),
		})
		if err != nil && !isAlreadyExists(err) {
			return "", "", resources, fmt.Errorf("failed to associate route table with subnet %s: %w", subnetID, err)
		}
	}

	return igwID, rtbID, resources, nil
}

func (t *Topology) findOrCreateInternetGateway(ctx context.Context, vpcID, name string) (string, error) {
	out, err := t.clients.EC2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{{Name: str("attachment.vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up internet gateway: %w", err)
	}
	if len(out.InternetGateways) > 0 {
		return awssdk.ToString(out.InternetGateways[0].InternetGatewayId), nil
	}

	createOut, err := t.clients.EC2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: tagSpec(ec2types.ResourceTypeInternetGateway, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create internet gateway: %w", err)
	}
	igwID := awssdk.ToString(createOut.InternetGateway.InternetGatewayId)

	_, err = t.clients.EC2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		InternetGatewayId: str(igwID),
		VpcId:             str(vpcID),
	})
	if err != nil && !isAlreadyExists(err) {
		return "", fmt.Errorf("failed to attach internet gateway: %w", err)
	}
	return igwID, nil
}

func (t *Topology) findOrCreateRouteTable(ctx context.Context, vpcID, name string) (string, error) {
	out, err := t.clients.EC2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: str("vpc-id"), Values: []string{vpcID}},
			{Name: str("tag:Name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up route table: %w", err)
	}
	if len(out.RouteTables) > 0 {
		return awssdk.ToString(out.RouteTables[0].RouteTableId), nil
	}

	createOut, err := t.clients.EC2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId:             str(vpcID),
		TagSpecifications: tagSpec(ec2types.ResourceTypeRouteTable, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create route table: %w", err)
	}
	return awssdk.ToString(createOut.RouteTable.RouteTableId), nil
}

func (t *Topology) findOrCreateSecurityGroup(ctx context.Context, vpcID, name, description string) (string, error) {
	out, err := t.clients.EC2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: str("vpc-id"), Values: []string{vpcID}},
			{Name: str("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to look up security group %s: %w", name, err)
	}
	if len(out.SecurityGroups) > 0 {
		return awssdk.ToString(out.SecurityGroups[0].GroupId), nil
	}

	createOut, err := t.clients.EC2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:         str(name),
		Description:       str(description),
		VpcId:             str(vpcID),
		TagSpecifications: tagSpec(ec2types.ResourceTypeSecurityGroup, name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create security group %s: %w", name, err)
	}
	return awssdk.ToString(createOut.GroupId), nil
}

// tagSpec builds the standard tag set for a created EC2 resource.
func tagSpec(resourceType ec2types.ResourceType, name string) []ec2types.TagSpecification {
	return []ec2types.TagSpecification{
		{
			ResourceType: resourceType,
			Tags: []ec2types.Tag{
				{Key: str("Name"), Value: str(name)},
				{Key: str("ManagedBy"), Value: str("slipway")},
			},
		},
	}
}

// =============================================================================
// Network Destroy
// =============================================================================

// destroyNetwork removes the network resources in reverse dependency order.
// Everything is best-effort: resources already gone are logged and skipped.
func (t *Topology) destroyNetwork(ctx context.Context, resources []domain.Resource) error {
	vpcID := providerID(resources, domain.ResourceVPC)

	for _, sgID := range providerIDs(resources, domain.ResourceSecurityGroup) {
		err := retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
			_, err := t.clients.EC2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: str(sgID)})
			return err
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete security group %s: %w", sgID, err)
		}
	}

	igwID := providerID(resources, domain.ResourceInternetGateway)
	if igwID != "" && vpcID != "" {
		_, err := t.clients.EC2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
			InternetGatewayId: str(igwID),
			VpcId:             str(vpcID),
		})
		if err != nil && !isNotFound(err) && errorCode(err) != "Gateway.NotAttached" {
			return fmt.Errorf("failed to detach internet gateway %s: %w", igwID, err)
		}
		_, err = t.clients.EC2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
			InternetGatewayId: str(igwID),
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete internet gateway %s: %w", igwID, err)
		}
	}

	for _, subnetID := range providerIDs(resources, domain.ResourceSubnet) {
		err := retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
			_, err := t.clients.EC2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: str(subnetID)})
			return err
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete subnet %s: %w", subnetID, err)
		}
	}

	rtbID := providerID(resources, domain.ResourceRouteTable)
	if rtbID != "" {
		_, err := t.clients.EC2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: str(rtbID)})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete route table %s: %w", rtbID, err)
		}
	}

	if vpcID != "" {
		err := retry(ctx, t.config.RetryAttempts, t.config.PollInterval, func() error {
			_, err := t.clients.EC2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: str(vpcID)})
			return err
		})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("failed to delete VPC %s: %w", vpcID, err)
		}
		t.logger.Info("vpc deleted", "vpc_id", vpcID)
	}

	return nil
}
