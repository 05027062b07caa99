package awsx

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/s3"
)

func NewS3(sess *session.Session) *s3.S3 {
	return s3.New(sess)
}

func NewDynamoDB(sess *session.Session) *dynamodb.DynamoDB {
	return dynamodb.New(sess)
}

// NewAPIGatewayManagement targets one WebSocket API stage, e.g.
// https://abc123.execute-api.us-east-1.amazonaws.com/prod.
func NewAPIGatewayManagement(sess *session.Session, endpoint string) (*apigatewaymanagementapi.ApiGatewayManagementApi, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("api gateway management endpoint required")
	}
	if !strings.HasPrefix(endpoint, "https://") && !strings.HasPrefix(endpoint, "http://") {
		endpoint = "https://" + endpoint
	}
	return apigatewaymanagementapi.New(sess, aws.NewConfig().WithEndpoint(endpoint)), nil
}
