package dataset

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/logger"
)

type fakeFetcher struct {
	messages  []kafka.Message
	committed []int64
}

func (f *fakeFetcher) Fetch(ctx context.Context) (kafka.Message, error) {
	if len(f.messages) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.messages[0]
	f.messages = f.messages[1:]
	return msg, nil
}

func (f *fakeFetcher) Commit(_ context.Context, msg kafka.Message) error {
	f.committed = append(f.committed, msg.Offset)
	return nil
}

func TestKafkaSourceCommitsOnNext(t *testing.T) {
	f := &fakeFetcher{messages: []kafka.Message{
		{Offset: 10, Value: []byte(`{"index":0,"loss":1}`)},
		{Offset: 11, Value: []byte(`not json`)},
		{Offset: 12, Value: []byte(`{"index":1,"loss":2}`)},
		{Offset: 13, Value: []byte(`{"final":true}`)},
	}}
	src := NewKafkaSource(f)
	ctx := context.Background()

	b, err := src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b.Index != 0 {
		t.Fatalf("expected batch 0, got %d", b.Index)
	}
	if len(f.committed) != 0 {
		t.Fatalf("expected no commits before the next call, got %v", f.committed)
	}

	b, err = src.Next(ctx)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if b.Index != 1 {
		t.Fatalf("expected batch 1, got %d", b.Index)
	}
	want := []int64{10, 11}
	if len(f.committed) != len(want) || f.committed[0] != 10 || f.committed[1] != 11 {
		t.Fatalf("expected commits %v, got %v", want, f.committed)
	}

	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream, got %v", err)
	}
	if len(f.committed) != 4 {
		t.Fatalf("expected all 4 offsets committed, got %v", f.committed)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream until Reset, got %v", err)
	}
}

func TestKafkaSourceCancelled(t *testing.T) {
	src := NewKafkaSource(&fakeFetcher{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestKafkaSourceEndsPassWhenRunChanges(t *testing.T) {
	var logs bytes.Buffer
	logger.SetupWriter(&logs, "info", "json")
	t.Cleanup(func() { logger.SetupWriter(&bytes.Buffer{}, "info", "json") })

	f := &fakeFetcher{messages: []kafka.Message{
		{Key: []byte("run-a"), Offset: 10, Value: []byte(`{"run_id":"run-a","index":0,"loss":1}`)},
		{Key: []byte("run-a"), Offset: 11, Value: []byte(`{"run_id":"run-a","index":1,"final":tru`)},
		{Key: []byte("run-b"), Offset: 20, Value: []byte(`{"run_id":"run-b","index":0,"loss":2}`)},
		{Key: []byte("run-b"), Offset: 21, Value: []byte(`{"run_id":"run-b","index":1,"final":true}`)},
	}}
	src := NewKafkaSource(f)
	ctx := context.Background()

	b, err := src.Next(ctx)
	if err != nil || b.RunID != "run-a" {
		t.Fatalf("expected the run-a batch, got %+v, %v", b, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected the pass to end at the next run, got %v", err)
	}
	if !reflect.DeepEqual(f.committed, []int64{10, 11}) {
		t.Fatalf("expected run-b to stay uncommitted, got commits %v", f.committed)
	}
	if !strings.Contains(logs.String(), `"run_key":"run-a"`) || !strings.Contains(logs.String(), "skipping undecodable batch") {
		t.Errorf("expected the undecodable batch to be logged with its run key, got %s", logs.String())
	}

	src.Reset()
	b, err = src.Next(ctx)
	if err != nil || b.RunID != "run-b" || b.Index != 0 {
		t.Fatalf("expected the next pass to start at run-b batch 0, got %+v, %v", b, err)
	}
	if _, err := src.Next(ctx); !errors.Is(err, ErrEndOfStream) {
		t.Fatalf("expected ErrEndOfStream at the run-b marker, got %v", err)
	}
	if !reflect.DeepEqual(f.committed, []int64{10, 11, 20, 21}) {
		t.Errorf("expected commits [10 11 20 21], got %v", f.committed)
	}
}
