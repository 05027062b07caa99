package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// RecordFields names the record attributes the relay reads and writes.
type RecordFields struct {
	ID       string `yaml:"id"`
	ParentID string `yaml:"parent_id"`
	JobID    string `yaml:"job_id"`
	Status   string `yaml:"status"`
	Outputs  string `yaml:"outputs"`
}

func DefaultRecordFields() RecordFields {
	return RecordFields{
		ID:       "id",
		ParentID: "parentId",
		JobID:    "jobId",
		Status:   "status",
		Outputs:  "outputs",
	}
}

// RecordCodec converts records to and from their JSON object form.
type RecordCodec struct {
	fields RecordFields
}

func NewRecordCodec(fields RecordFields) *RecordCodec {
	def := DefaultRecordFields()
	if strings.TrimSpace(fields.ID) == "" {
		fields.ID = def.ID
	}
	if strings.TrimSpace(fields.ParentID) == "" {
		fields.ParentID = def.ParentID
	}
	if strings.TrimSpace(fields.JobID) == "" {
		fields.JobID = def.JobID
	}
	if strings.TrimSpace(fields.Status) == "" {
		fields.Status = def.Status
	}
	if strings.TrimSpace(fields.Outputs) == "" {
		fields.Outputs = def.Outputs
	}
	return &RecordCodec{fields: fields}
}

func (c *RecordCodec) Fields() RecordFields { return c.fields }

func (c *RecordCodec) isKnown(key string) bool {
	switch key {
	case c.fields.ID, c.fields.ParentID, c.fields.JobID, c.fields.Status, c.fields.Outputs:
		return true
	}
	return false
}

// Decode reads a snapshot. id and parent id are required; an unrecognised status is
// kept verbatim so the record still round-trips, it just never triggers polling.
func (c *RecordCodec) Decode(obj map[string]any) (JobRecord, error) {
	var rec JobRecord
	if obj == nil {
		return rec, fmt.Errorf("decode record: empty snapshot")
	}
	rec.ID = scalarString(obj[c.fields.ID])
	rec.ParentID = scalarString(obj[c.fields.ParentID])
	if rec.ID == "" {
		return rec, fmt.Errorf("decode record: missing %q", c.fields.ID)
	}
	if rec.ParentID == "" {
		return rec, fmt.Errorf("decode record %s: missing %q", rec.ID, c.fields.ParentID)
	}
	rec.JobID = scalarString(obj[c.fields.JobID])
	if raw := scalarString(obj[c.fields.Status]); raw != "" {
		if st, err := ParseJobStatus(raw); err == nil {
			rec.Status = st
		} else {
			rec.Status = JobStatus(strings.ToLower(raw))
		}
	}
	outputs, err := stringList(obj[c.fields.Outputs])
	if err != nil {
		return rec, fmt.Errorf("decode record %s: %s: %w", rec.ID, c.fields.Outputs, err)
	}
	rec.Outputs = outputs

	rec.Fields = make(map[string]any, len(obj))
	for k, v := range obj {
		if c.isKnown(k) {
			continue
		}
		rec.Fields[k] = v
	}
	return rec, nil
}

func (c *RecordCodec) Encode(rec JobRecord) map[string]any {
	out := make(map[string]any, len(rec.Fields)+5)
	for k, v := range rec.Fields {
		out[k] = v
	}
	out[c.fields.ID] = rec.ID
	out[c.fields.ParentID] = rec.ParentID
	if rec.JobID != "" {
		out[c.fields.JobID] = rec.JobID
	}
	if rec.Status != "" {
		out[c.fields.Status] = string(rec.Status)
	}
	outputs := rec.Outputs
	if outputs == nil {
		outputs = []string{}
	}
	out[c.fields.Outputs] = outputs
	return out
}

func (c *RecordCodec) DecodeJSON(raw []byte) (JobRecord, error) {
	obj, err := DecodeObject(raw)
	if err != nil {
		return JobRecord{}, err
	}
	return c.Decode(obj)
}

func (c *RecordCodec) EncodeJSON(rec JobRecord) ([]byte, error) {
	return json.Marshal(c.Encode(rec))
}

// DecodeObject parses a JSON object keeping numbers as json.Number so caller-owned
// numeric fields survive a round trip unchanged.
func DecodeObject(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode json object: %w", err)
	}
	return obj, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func stringList(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		return []string{t}, nil
	case []string:
		return append([]string(nil), t...), nil
	case []any:
		out := make([]string, 0, len(t))
		for i, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d is %T, want string", i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %T", v)
	}
}
