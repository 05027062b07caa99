package awsx

import (
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"

	"github.com/yungbote/jobrelay/internal/domain"
)

// StreamRecord is one entry of a DynamoDB Streams batch as delivered to a
// stream consumer (Lambda event source or a forwarding relay).
type StreamRecord struct {
	EventID   string `json:"eventID"`
	EventName string `json:"eventName"`
	Dynamodb  struct {
		Keys     map[string]*dynamodb.AttributeValue `json:"Keys"`
		NewImage map[string]*dynamodb.AttributeValue `json:"NewImage"`
		OldImage map[string]*dynamodb.AttributeValue `json:"OldImage"`
	} `json:"dynamodb"`
}

type StreamBatch struct {
	Records []StreamRecord `json:"Records"`
}

// LooksLikeStreamBatch reports whether raw is a DynamoDB Streams envelope.
func LooksLikeStreamBatch(raw []byte) bool {
	var probe struct {
		Records json.RawMessage `json:"Records"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return len(probe.Records) > 0
}

func DecodeStreamBatch(raw []byte) (StreamBatch, error) {
	var b StreamBatch
	if err := json.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("decode stream batch: %w", err)
	}
	return b, nil
}

// UnmarshalImage converts a typed DynamoDB image into a plain map.
func UnmarshalImage(img map[string]*dynamodb.AttributeValue) (map[string]any, error) {
	if len(img) == 0 {
		return nil, nil
	}
	var out map[string]any
	if err := dynamodbattribute.UnmarshalMap(img, &out); err != nil {
		return nil, fmt.Errorf("unmarshal dynamodb image: %w", err)
	}
	return out, nil
}

// ChangeEvents converts a stream batch into change events. Records that do
// not decode are reported in errs and skipped; the rest are still returned.
func (b StreamBatch) ChangeEvents(codec *domain.RecordCodec) (events []domain.ChangeEvent, errs []error) {
	for i, rec := range b.Records {
		kind, err := domain.ParseChangeKind(rec.EventName)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		newObj, err := UnmarshalImage(rec.Dynamodb.NewImage)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: NewImage: %w", i, err))
			continue
		}
		oldObj, err := UnmarshalImage(rec.Dynamodb.OldImage)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: OldImage: %w", i, err))
			continue
		}
		ev, err := codec.ChangeEventFromObjects(kind, newObj, oldObj)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		events = append(events, ev)
	}
	return events, errs
}
