package aws

import (
	"context"
	"errors"
	"strings"
	"time"

	smithy "github.com/aws/smithy-go"
)

// =============================================================================
// Error Classification
// =============================================================================

// errorCode extracts the API error code, or "" for non-API errors.
func errorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// isNotFound reports whether the error means the resource is already gone.
// Destroy treats these as success.
func isNotFound(err error) bool {
	code := errorCode(err)
	if code == "" {
		return false
	}
	return strings.Contains(code, "NotFound") ||
		strings.Contains(code, "NotFoundException") ||
		code == "NoSuchEntity" ||
		code == "RepositoryNotFoundException" ||
		code == "ClusterNotFoundException" ||
		code == "LoadBalancerNotFound" ||
		code == "TargetGroupNotFound"
}

// isAlreadyExists reports whether a create failed because the resource is
// already there. Apply treats these as adopt-and-continue.
func isAlreadyExists(err error) bool {
	code := errorCode(err)
	if code == "" {
		return false
	}
	return strings.Contains(code, "AlreadyExists") ||
		strings.Contains(code, "Duplicate") ||
		code == "EntityAlreadyExists" ||
		code == "InvalidPermission.Duplicate"
}

// isRetryable reports errors worth retrying on a short delay: freshly created
// IAM roles are not visible to other services immediately, and a few APIs
// reject references to resources still settling.
func isRetryable(err error) bool {
	code := errorCode(err)
	if code == "" {
		return false
	}
	switch code {
	case "InvalidParameterException", "InvalidInput", "DependencyViolation",
		"ResourceInUse", "ResourceInUseException", "InvalidRoleException",
		"ClusterContainsServicesException", "Throttling", "ThrottlingException":
		return true
	}
	return false
}

// retry runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget runs out.
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
