package workers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/modelplane/modelplane/internal/llm"
	"github.com/modelplane/modelplane/internal/tenant"
	"github.com/modelplane/modelplane/internal/vectorstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScope() tenant.Scope {
	return tenant.Scope{TenantID: uuid.New(), ProjectID: uuid.New()}
}

func mustTask(t *testing.T, taskType string, payload []byte) *asynq.Task {
	t.Helper()
	return asynq.NewTask(taskType, payload)
}

// fakeStorage keeps artifacts in memory.
type fakeStorage struct {
	objects map[string][]byte
	putErr  error
	getErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Put(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	f.objects[bucket+"/"+key] = b
	return "mem://" + bucket + "/" + key, nil
}

func (f *fakeStorage) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	b, ok := f.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeStorage) Delete(ctx context.Context, bucket, key string) error {
	delete(f.objects, bucket+"/"+key)
	return nil
}

// fakeGateway answers chat requests from a canned map and returns a fixed
// embedding for everything.
type fakeGateway struct {
	answers   map[string]string
	chatCalls int
	chatErr   error
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	input := req.Messages[len(req.Messages)-1].Content
	answer, ok := f.answers[input]
	if !ok {
		answer = "no idea"
	}
	return &llm.ChatResponse{Content: answer, Model: req.Model}, nil
}

func (f *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	embeddings := make([][]float32, len(req.Input))
	for i := range req.Input {
		embeddings[i] = []float32{0.1, 0.2, 0.3}
	}
	return &llm.EmbeddingResponse{Embeddings: embeddings}, nil
}

func (f *fakeGateway) Provider(name string) (llm.Provider, error) {
	return nil, fmt.Errorf("provider %q not configured", name)
}

// fakeVectors records upserts.
type fakeVectors struct {
	records []vectorstore.Record
}

func (f *fakeVectors) Upsert(ctx context.Context, records []vectorstore.Record) error {
	f.records = append(f.records, records...)
	return nil
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Emit(ctx context.Context, scope tenant.Scope, event string, payload any) {
	n.events = append(n.events, event)
}

func (n *recordingNotifier) has(event string) bool {
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}
