package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-redis/redis/v8"

	"github.com/example/order-event-pipeline/internal/event"
)

type fakeRedis struct {
	lists   map[string][][]byte
	failing bool
}

func (f *fakeRedis) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.failing {
		return redis.NewIntResult(0, errors.New("connection refused"))
	}
	if f.lists == nil {
		f.lists = map[string][][]byte{}
	}
	for _, v := range values {
		f.lists[key] = append(f.lists[key], v.([]byte))
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func TestPush(t *testing.T) {
	fake := &fakeRedis{}
	s := NewSink(fake, "dlq")

	env := event.Envelope{ID: "e2", CorrelationID: "corr-1"}
	dl := event.DeadLetter{
		OriginalID:      "e1",
		OriginalType:    event.TypeCheckoutCommand,
		OriginalPayload: json.RawMessage(`{"total":45}`),
		Error:           "insufficient stock",
		Attempts:        1,
	}
	if err := s.Push(context.Background(), env, dl); err != nil {
		t.Fatalf("Push error: %v", err)
	}

	items := fake.lists["dlq"]
	if len(items) != 1 {
		t.Fatalf("list length = %d", len(items))
	}
	var rec Record
	if err := json.Unmarshal(items[0], &rec); err != nil {
		t.Fatalf("record did not parse: %v", err)
	}
	if rec.OriginalID != "e1" || rec.CorrelationID != "corr-1" || rec.Attempts != 1 {
		t.Fatalf("record wrong: %+v", rec)
	}
	if string(rec.OriginalPayload) != `{"total":45}` {
		t.Fatalf("payload not intact: %s", rec.OriginalPayload)
	}
}

func TestPushSurfacesStoreErrors(t *testing.T) {
	s := NewSink(&fakeRedis{failing: true}, "dlq")
	err := s.Push(context.Background(), event.Envelope{ID: "e1"}, event.DeadLetter{})
	if err == nil {
		t.Fatalf("expected error so the consumer can request a retry")
	}
}

func TestDefaultListKey(t *testing.T) {
	fake := &fakeRedis{}
	s := NewSink(fake, "")
	if err := s.Push(context.Background(), event.Envelope{ID: "e1"}, event.DeadLetter{}); err != nil {
		t.Fatalf("Push error: %v", err)
	}
	if len(fake.lists["deadletter"]) != 1 {
		t.Fatalf("default list not used: %v", fake.lists)
	}
}
