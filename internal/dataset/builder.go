package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelplane/modelplane/internal/governance"
	"github.com/modelplane/modelplane/internal/models"
	"github.com/modelplane/modelplane/internal/tenant"
	"github.com/modelplane/modelplane/pkg/tokenizer"
)

// BuildResult is a rendered training artifact plus the counts recorded on
// the dataset row.
type BuildResult struct {
	Data          []byte
	RecordCount   int
	TokenEstimate int
	DroppedCount  int
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatExample struct {
	Messages []chatMessage `json:"messages"`
}

type promptCompletionExample struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Render converts source traces into a JSONL training artifact. Traces
// flagged by the governance scanner are dropped, which is what makes the
// resulting dataset sanitized.
func Render(format string, traces []models.SourceTrace, scanner *governance.Scanner) (*BuildResult, error) {
	switch format {
	case models.DatasetFormatChat, models.DatasetFormatPromptCompletion:
	default:
		return nil, fmt.Errorf("unknown dataset format %q", format)
	}

	result := &BuildResult{}
	buf := &bytes.Buffer{}

	for _, tr := range traces {
		if tr.Input == "" || tr.Output == "" {
			result.DroppedCount++
			continue
		}
		if len(scanner.Scan(tr.Input)) > 0 || len(scanner.Scan(tr.Output)) > 0 {
			result.DroppedCount++
			continue
		}

		var record interface{}
		switch format {
		case models.DatasetFormatChat:
			ex := chatExample{}
			if tr.System != "" {
				ex.Messages = append(ex.Messages, chatMessage{Role: "system", Content: tr.System})
			}
			ex.Messages = append(ex.Messages,
				chatMessage{Role: "user", Content: tr.Input},
				chatMessage{Role: "assistant", Content: tr.Output},
			)
			record = ex
		case models.DatasetFormatPromptCompletion:
			record = promptCompletionExample{Prompt: tr.Input, Completion: tr.Output}
		}

		data, err := json.Marshal(record)
		if err != nil {
			return nil, fmt.Errorf("marshal trace %s: %w", tr.ID, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')

		result.RecordCount++
		if tr.System != "" {
			result.TokenEstimate += tokenizer.CountTokens(tr.System)
		}
		result.TokenEstimate += tokenizer.CountTokens(tr.Input) + tokenizer.CountTokens(tr.Output)
	}

	if result.RecordCount == 0 {
		return nil, fmt.Errorf("no usable source traces (%d dropped)", result.DroppedCount)
	}

	result.Data = buf.Bytes()
	return result, nil
}

// ArtifactKey is the deterministic object key a dataset's artifact lives at.
func ArtifactKey(scope tenant.Scope, datasetID uuid.UUID) string {
	return fmt.Sprintf("datasets/%s/%s/%s/dataset.jsonl", scope.TenantID, scope.ProjectID, datasetID)
}
