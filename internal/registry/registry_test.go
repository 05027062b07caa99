package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

	"github.com/yungbote/jobrelay/internal/domain"
	"github.com/yungbote/jobrelay/internal/platform/logger"
)

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	reg := NewMemory()

	if err := reg.Add(ctx, domain.Subscriber{}); !errors.Is(err, ErrInvalidSubscriber) {
		t.Fatalf("Add(empty): want ErrInvalidSubscriber got %v", err)
	}
	for _, id := range []string{"b", "a", "a"} {
		if err := reg.Add(ctx, domain.Subscriber{ConnectionID: id}); err != nil {
			t.Fatalf("Add(%s): %v", id, err)
		}
	}
	subs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 2 || subs[0].ConnectionID != "a" || subs[1].ConnectionID != "b" {
		t.Fatalf("List: got %+v", subs)
	}
	if subs[0].CreatedAt.IsZero() {
		t.Fatalf("Add should stamp CreatedAt")
	}

	if err := reg.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := reg.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove twice: %v", err)
	}
	subs, _ = reg.List(ctx)
	if len(subs) != 1 || subs[0].ConnectionID != "b" {
		t.Fatalf("List after remove: got %+v", subs)
	}
}

func TestParseBackend(t *testing.T) {
	cases := map[string]Backend{
		"":         BackendMemory,
		"DynamoDB": BackendDynamoDB,
		" redis ":  BackendRedis,
		"postgres": BackendPostgres,
		"sqlite":   BackendSQLite,
	}
	for in, want := range cases {
		got, ok := ParseBackend(in)
		if !ok || got != want {
			t.Fatalf("ParseBackend(%q): want=%s got=%s ok=%v", in, want, got, ok)
		}
	}
	if _, ok := ParseBackend("mongo"); ok {
		t.Fatalf("ParseBackend(mongo): want not ok")
	}
}

type fakeDynamo struct {
	dynamodbiface.DynamoDBAPI
	items   map[string]map[string]*dynamodb.AttributeValue
	pages   int
	deletes []string
}

func (f *fakeDynamo) ScanPagesWithContext(_ aws.Context, in *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, _ ...request.Option) error {
	all := make([]map[string]*dynamodb.AttributeValue, 0, len(f.items))
	for _, it := range f.items {
		all = append(all, it)
	}
	// one item per page to exercise pagination
	for i, it := range all {
		f.pages++
		if !fn(&dynamodb.ScanOutput{Items: []map[string]*dynamodb.AttributeValue{it}}, i == len(all)-1) {
			return nil
		}
	}
	return nil
}

func (f *fakeDynamo) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	id := aws.StringValue(in.Item[dynamoHashKey].S)
	f.items[id] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	id := aws.StringValue(in.Key[dynamoHashKey].S)
	f.deletes = append(f.deletes, id)
	delete(f.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDBRegistry(t *testing.T) {
	ctx := context.Background()
	fake := &fakeDynamo{items: map[string]map[string]*dynamodb.AttributeValue{
		"legacy": {dynamoHashKey: {S: aws.String("legacy")}},
		"broken": {"other": {S: aws.String("x")}},
	}}
	reg, err := NewDynamoDB(logger.Nop(), fake, "connections")
	if err != nil {
		t.Fatalf("NewDynamoDB: %v", err)
	}
	created := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	if err := reg.Add(ctx, domain.Subscriber{ConnectionID: "c1", Endpoint: "https://hook", CreatedAt: created}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	subs, err := reg.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("List: want 2 subscribers got %+v", subs)
	}
	if fake.pages != 3 {
		t.Fatalf("pages: want=3 got=%d", fake.pages)
	}
	byID := map[string]domain.Subscriber{}
	for _, s := range subs {
		byID[s.ConnectionID] = s
	}
	if got := byID["c1"]; got.Endpoint != "https://hook" || !got.CreatedAt.Equal(created) {
		t.Fatalf("c1: got %+v", got)
	}
	if _, ok := byID["legacy"]; !ok {
		t.Fatalf("items written by other producers (id only) should be listed")
	}

	if err := reg.Remove(ctx, "c1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := reg.Remove(ctx, "c1"); err != nil {
		t.Fatalf("Remove missing: %v", err)
	}
	if len(fake.deletes) != 2 {
		t.Fatalf("deletes: want=2 got=%d", len(fake.deletes))
	}
}

func TestNewDynamoDBRequiresTable(t *testing.T) {
	if _, err := NewDynamoDB(logger.Nop(), &fakeDynamo{}, ""); err == nil {
		t.Fatalf("NewDynamoDB: expected error for empty table")
	}
}
