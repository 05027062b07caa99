package realtime

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"

	"github.com/yungbote/jobrelay/internal/domain"
)

// APIGatewayTransport posts to API Gateway WebSocket connections.
type APIGatewayTransport struct {
	api apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewAPIGatewayTransport(api apigatewaymanagementapiiface.ApiGatewayManagementApiAPI) *APIGatewayTransport {
	return &APIGatewayTransport{api: api}
}

func (t *APIGatewayTransport) Deliver(ctx context.Context, sub domain.Subscriber, payload []byte) error {
	_, err := t.api.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(sub.ConnectionID),
		Data:         payload,
	})
	if err == nil {
		return nil
	}
	if isGoneConnection(err) {
		return gone("apigateway", sub.ConnectionID, err)
	}
	return transient("apigateway", sub.ConnectionID, err)
}

func isGoneConnection(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusGone {
		return true
	}
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException
}
