package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentFactory/internal/config"
	"ContentFactory/internal/domain"
)

func sampleResult() domain.WorkflowResult {
	return domain.WorkflowResult{
		ID:         "5e0c1f2a-3b4c-4d5e-8f60-718293a4b5c6",
		ProductRef: "6f1c7c52-8d0b-4a53-a6d4-5f3e7b8e0c11",
		Product:    domain.Product{ExternalID: "fakestore:1", Name: "Backpack"},
		Status:     domain.StatusCompleted,
		StartedAt:  time.Date(2026, 2, 9, 23, 59, 0, 0, time.UTC),
		FinishedAt: time.Date(2026, 2, 10, 0, 1, 0, 0, time.UTC),
	}
}

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.calls <= w.failures {
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherRecord(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	p := newKafkaPublisher(w)

	require.NoError(t, p.Record(context.Background(), sampleResult()))
	require.Len(t, w.written, 1)

	msg := w.written[0]
	assert.Equal(t, "fakestore:1", string(msg.Key))

	var event ResultEvent
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, EventWorkflowResult, event.Type)
	assert.Equal(t, domain.StatusCompleted, event.Result.Status)
	assert.Equal(t, "completed", string(msg.Headers[1].Value))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisherRetries(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{failures: 2}
	p := newKafkaPublisher(w)
	p.backoff = time.Millisecond

	require.NoError(t, p.Record(context.Background(), sampleResult()))
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 1)
}

func TestKafkaPublisherGivesUp(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{failures: 10}
	p := newKafkaPublisher(w)
	p.backoff = time.Millisecond

	err := p.Record(context.Background(), sampleResult())
	assert.ErrorContains(t, err, "leader not available")
	assert.Equal(t, 3, w.calls)
}

func TestNewKafkaPublisherValidates(t *testing.T) {
	t.Parallel()

	_, err := NewKafkaPublisher(config.KafkaConfig{Topic: "results"})
	assert.Error(t, err)
	_, err = NewKafkaPublisher(config.KafkaConfig{Brokers: []string{"localhost:9092"}})
	assert.Error(t, err)
}

type fakeUploader struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	if u.err != nil {
		return nil, u.err
	}
	u.input = input
	u.body, _ = io.ReadAll(input.Body)
	return &manager.UploadOutput{Key: input.Key}, nil
}

func TestS3ArchiveRecord(t *testing.T) {
	t.Parallel()

	up := &fakeUploader{}
	archive := &S3Archive{bucket: "results", prefix: "content-factory", uploader: up}

	require.NoError(t, archive.Record(context.Background(), sampleResult()))
	require.NotNil(t, up.input)
	assert.Equal(t, "results", aws.ToString(up.input.Bucket))
	assert.Equal(t, "content-factory/results/2026/02/10/5e0c1f2a-3b4c-4d5e-8f60-718293a4b5c6.json", aws.ToString(up.input.Key))
	assert.Equal(t, "application/json", aws.ToString(up.input.ContentType))

	var stored domain.WorkflowResult
	require.NoError(t, json.Unmarshal(up.body, &stored))
	assert.Equal(t, "fakestore:1", stored.Product.ExternalID)
}

func TestS3ArchiveUploadError(t *testing.T) {
	t.Parallel()

	archive := &S3Archive{bucket: "results", uploader: &fakeUploader{err: errors.New("access denied")}}
	assert.ErrorContains(t, archive.Record(context.Background(), sampleResult()), "s3 upload failed")
}
