package aws

import (
	"context"
	"errors"
	"testing"
	"time"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/core/domain"
)

func apiError(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "RepositoryNotFoundException", errorCode(apiError("RepositoryNotFoundException")))
	assert.Empty(t, errorCode(errors.New("plain error")))
	assert.Empty(t, errorCode(nil))
}

func TestIsNotFound(t *testing.T) {
	for _, code := range []string{
		"InvalidVpcID.NotFound",
		"InvalidSubnetID.NotFound",
		"RepositoryNotFoundException",
		"ClusterNotFoundException",
		"ServiceNotFoundException",
		"LoadBalancerNotFound",
		"TargetGroupNotFound",
		"NoSuchEntity",
		"ResourceNotFoundException",
	} {
		assert.True(t, isNotFound(apiError(code)), code)
	}
	assert.False(t, isNotFound(apiError("AccessDenied")))
	assert.False(t, isNotFound(errors.New("not an api error")))
}

func TestIsAlreadyExists(t *testing.T) {
	for _, code := range []string{
		"RepositoryAlreadyExistsException",
		"EntityAlreadyExists",
		"DuplicateLoadBalancerName",
		"InvalidPermission.Duplicate",
		"ResourceAlreadyExistsException",
	} {
		assert.True(t, isAlreadyExists(apiError(code)), code)
	}
	assert.False(t, isAlreadyExists(apiError("ValidationError")))
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return apiError("AccessDenied")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_RetryableEventuallySucceeds(t *testing.T) {
	calls := 0
	err := retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return apiError("InvalidParameterException")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	err := retry(context.Background(), 3, time.Millisecond, func() error {
		return apiError("Throttling")
	})
	require.Error(t, err)
	assert.Equal(t, "Throttling", errorCode(err))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := retry(ctx, 10, 50*time.Millisecond, func() error {
		return apiError("Throttling")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProviderIDHelpers(t *testing.T) {
	resources := []domain.Resource{
		{Kind: domain.ResourceVPC, Name: "demo-vpc", ProviderID: "vpc-1"},
		{Kind: domain.ResourceSubnet, Name: "demo-vpc-public-1", ProviderID: "subnet-1"},
		{Kind: domain.ResourceSubnet, Name: "demo-vpc-public-2", ProviderID: "subnet-2"},
	}

	assert.Equal(t, "vpc-1", providerID(resources, domain.ResourceVPC))
	assert.Empty(t, providerID(resources, domain.ResourceListener))
	assert.Equal(t, []string{"subnet-1", "subnet-2"}, providerIDs(resources, domain.ResourceSubnet))
	assert.Nil(t, providerIDs(resources, domain.ResourceRole))
}
