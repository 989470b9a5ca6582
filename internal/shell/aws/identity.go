package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/codestarconnections"
	cstypes "github.com/aws/aws-sdk-go-v2/service/codestarconnections/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// accountID resolves the caller's account via STS.
func (t *Topology) accountID(ctx context.Context) (string, error) {
	out, err := t.clients.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("failed to resolve caller identity: %w", err)
	}
	return awssdk.ToString(out.Account), nil
}

// verifyConnection checks that the referenced source connection exists and
// has completed its handshake with the source host. The connection is a
// pre-created resource; it is only ever referenced, never created here.
func (t *Topology) verifyConnection(ctx context.Context, connectionARN string) error {
	out, err := t.clients.Connections.GetConnection(ctx, &codestarconnections.GetConnectionInput{
		ConnectionArn: str(connectionARN),
	})
	if err != nil {
		return fmt.Errorf("failed to look up source connection %s: %w", connectionARN, err)
	}

	status := out.Connection.ConnectionStatus
	if status != cstypes.ConnectionStatusAvailable {
		return fmt.Errorf("source connection %s is %s, not AVAILABLE; complete its authorization in the console first",
			connectionARN, status)
	}
	return nil
}
