package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/modelplane/modelplane/internal/governance"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
)

func trace(system, input, output string) models.SourceTrace {
	return models.SourceTrace{ID: uuid.New(), System: system, Input: input, Output: output}
}

func TestRenderChatFormat(t *testing.T) {
	traces := []models.SourceTrace{
		trace("You are helpful.", "What is 2+2?", "4"),
		trace("", "Name a color", "Blue"),
	}

	result, err := Render(models.DatasetFormatChat, traces, governance.NewScanner())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.RecordCount != 2 {
		t.Fatalf("record count = %d, want 2", result.RecordCount)
	}
	if result.DroppedCount != 0 {
		t.Fatalf("dropped = %d, want 0", result.DroppedCount)
	}
	if result.TokenEstimate <= 0 {
		t.Fatalf("token estimate = %d, want > 0", result.TokenEstimate)
	}

	scanner := bufio.NewScanner(bytes.NewReader(result.Data))
	var lines []chatExample
	for scanner.Scan() {
		var ex chatExample
		if err := json.Unmarshal(scanner.Bytes(), &ex); err != nil {
			t.Fatalf("invalid JSONL line: %v", err)
		}
		lines = append(lines, ex)
	}
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	// With a system prompt: system, user, assistant. Without: user, assistant.
	if len(lines[0].Messages) != 3 || lines[0].Messages[0].Role != "system" {
		t.Fatalf("first record messages = %+v", lines[0].Messages)
	}
	if len(lines[1].Messages) != 2 || lines[1].Messages[0].Role != "user" {
		t.Fatalf("second record messages = %+v", lines[1].Messages)
	}
}

func TestRenderPromptCompletionFormat(t *testing.T) {
	traces := []models.SourceTrace{trace("", "ping", "pong")}

	result, err := Render(models.DatasetFormatPromptCompletion, traces, governance.NewScanner())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	var ex promptCompletionExample
	line := strings.TrimSpace(string(result.Data))
	if err := json.Unmarshal([]byte(line), &ex); err != nil {
		t.Fatalf("invalid JSONL: %v", err)
	}
	if ex.Prompt != "ping" || ex.Completion != "pong" {
		t.Fatalf("record = %+v", ex)
	}
}

func TestRenderDropsEmptyAndFlaggedTraces(t *testing.T) {
	traces := []models.SourceTrace{
		trace("", "good question", "good answer"),
		trace("", "", "answer with no question"),
		trace("", "how to make a bomb", "sure, here is how"),
	}

	result, err := Render(models.DatasetFormatChat, traces, governance.NewScanner())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if result.RecordCount != 1 {
		t.Fatalf("record count = %d, want 1", result.RecordCount)
	}
	if result.DroppedCount != 2 {
		t.Fatalf("dropped = %d, want 2", result.DroppedCount)
	}
}

func TestRenderNoUsableTraces(t *testing.T) {
	traces := []models.SourceTrace{trace("", "", "")}
	if _, err := Render(models.DatasetFormatChat, traces, governance.NewScanner()); err == nil {
		t.Fatal("expected error for all-dropped trace set")
	}
}

func TestRenderUnknownFormat(t *testing.T) {
	if _, err := Render("csv", nil, governance.NewScanner()); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestArtifactKeyDeterministic(t *testing.T) {
	scope := tenant.Scope{TenantID: uuid.New(), ProjectID: uuid.New()}
	id := uuid.New()
	k1 := ArtifactKey(scope, id)
	k2 := ArtifactKey(scope, id)
	if k1 != k2 {
		t.Fatalf("keys differ: %s vs %s", k1, k2)
	}
	if !strings.HasPrefix(k1, "datasets/") || !strings.HasSuffix(k1, "/dataset.jsonl") {
		t.Fatalf("unexpected key shape: %s", k1)
	}
}
