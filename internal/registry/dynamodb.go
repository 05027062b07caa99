package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

const dynamoHashKey = "connectionId"

type dynamoItem struct {
	ConnectionID string `dynamodbav:"connectionId"`
	Endpoint     string `dynamodbav:"endpoint,omitempty"`
	CreatedAt    string `dynamodbav:"createdAt,omitempty"`
}

// DynamoDB stores one item per connection, hash key "connectionId".
type DynamoDB struct {
	log   *logger.Logger
	api   dynamodbiface.DynamoDBAPI
	table string
	now   func() time.Time
}

func NewDynamoDB(log *logger.Logger, api dynamodbiface.DynamoDBAPI, table string) (*DynamoDB, error) {
	if table == "" {
		return nil, fmt.Errorf("dynamodb registry: table required")
	}
	return &DynamoDB{
		log:   log.With("registry", "DynamoDB", "table", table),
		api:   api,
		table: table,
		now:   time.Now,
	}, nil
}

func (r *DynamoDB) List(ctx context.Context) ([]domain.Subscriber, error) {
	var (
		out      []domain.Subscriber
		scanErr  error
		pageNo   int
		badItems int
	)
	err := r.api.ScanPagesWithContext(ctx, &dynamodb.ScanInput{TableName: aws.String(r.table)},
		func(page *dynamodb.ScanOutput, _ bool) bool {
			pageNo++
			for _, raw := range page.Items {
				var it dynamoItem
				if err := dynamodbattribute.UnmarshalMap(raw, &it); err != nil {
					scanErr = fmt.Errorf("decode subscriber item: %w", err)
					return false
				}
				if it.ConnectionID == "" {
					badItems++
					continue
				}
				out = append(out, it.toSubscriber())
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.table, err)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if badItems > 0 {
		r.log.Warn("Skipped subscriber items without connection id", "count", badItems, "pages", pageNo)
	}
	return out, nil
}

func (r *DynamoDB) Add(ctx context.Context, sub domain.Subscriber) error {
	if err := Validate(sub); err != nil {
		return err
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = r.now().UTC()
	}
	item, err := dynamodbattribute.MarshalMap(dynamoItem{
		ConnectionID: sub.ConnectionID,
		Endpoint:     sub.Endpoint,
		CreatedAt:    sub.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encode subscriber: %w", err)
	}
	if _, err := r.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.table),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put subscriber %s: %w", sub.ConnectionID, err)
	}
	return nil
}

// Remove deletes by hash key. Deleting a missing key succeeds.
func (r *DynamoDB) Remove(ctx context.Context, connectionID string) error {
	_, err := r.api.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.table),
		Key: map[string]*dynamodb.AttributeValue{
			dynamoHashKey: {S: aws.String(connectionID)},
		},
	})
	if err != nil {
		return fmt.Errorf("delete subscriber %s: %w", connectionID, err)
	}
	return nil
}

func (it dynamoItem) toSubscriber() domain.Subscriber {
	sub := domain.Subscriber{ConnectionID: it.ConnectionID, Endpoint: it.Endpoint}
	if it.CreatedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, it.CreatedAt); err == nil {
			sub.CreatedAt = ts
		}
	}
	return sub
}
