package finetune

import (
	"strings"
	"testing"

	"github.com/modelplane/modelplane/internal/models"
)

func TestValidateJSONLChat(t *testing.T) {
	data := `{"messages":[{"role":"system","content":"be helpful"},{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]}
{"messages":[{"role":"user","content":"ping"},{"role":"assistant","content":"pong"}]}
`
	count, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatChat)
	if err != nil {
		t.Fatalf("ValidateJSONL: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestValidateJSONLChatMissingAssistant(t *testing.T) {
	data := `{"messages":[{"role":"user","content":"hi"},{"role":"user","content":"anyone?"}]}`
	if _, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatChat); err == nil {
		t.Fatal("expected error for missing assistant message")
	}
}

func TestValidateJSONLChatInvalidRole(t *testing.T) {
	data := `{"messages":[{"role":"robot","content":"hi"},{"role":"assistant","content":"hello"}]}`
	if _, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatChat); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestValidateJSONLChatEmptyContent(t *testing.T) {
	data := `{"messages":[{"role":"user","content":""},{"role":"assistant","content":"hello"}]}`
	if _, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatChat); err == nil {
		t.Fatal("expected error for empty content")
	}
}

func TestValidateJSONLPromptCompletion(t *testing.T) {
	data := `{"prompt":"ping","completion":"pong"}
{"prompt":"2+2","completion":"4"}
`
	count, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatPromptCompletion)
	if err != nil {
		t.Fatalf("ValidateJSONL: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}

func TestValidateJSONLPromptCompletionMissingField(t *testing.T) {
	data := `{"prompt":"ping"}`
	if _, err := ValidateJSONL(strings.NewReader(data), models.DatasetFormatPromptCompletion); err == nil {
		t.Fatal("expected error for missing completion")
	}
}

func TestValidateJSONLEmpty(t *testing.T) {
	if _, err := ValidateJSONL(strings.NewReader("\n\n"), models.DatasetFormatChat); err == nil {
		t.Fatal("expected error for empty artifact")
	}
}

func TestValidateJSONLUnknownFormat(t *testing.T) {
	if _, err := ValidateJSONL(strings.NewReader(`{"x":1}`), "csv"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestEstimateCostKnownModel(t *testing.T) {
	got := EstimateCost("gpt-4o-mini-2024-07-18", 100_000)
	want := 0.003 * 100.0
	if got != want {
		t.Fatalf("estimate = %v, want %v", got, want)
	}
}

func TestEstimateCostUnknownModelUsesDefault(t *testing.T) {
	got := EstimateCost("mystery-model", 1000)
	if got != defaultTrainingCostPer1K {
		t.Fatalf("estimate = %v, want default %v", got, defaultTrainingCostPer1K)
	}
}

func TestActualCost(t *testing.T) {
	got := ActualCost("babbage-002", 50_000)
	want := 0.0004 * 50.0
	if got != want {
		t.Fatalf("actual = %v, want %v", got, want)
	}
}
