package finetune

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/modelplane/modelplane/internal/models"
)

type chatExample struct {
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type promptCompletionExample struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// ValidateJSONL checks a training artifact line by line before it is sent
// to a provider, and returns the record count.
func ValidateJSONL(r io.Reader, format string) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB buffer per line

	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch format {
		case models.DatasetFormatChat:
			if err := validateChatLine(line, count+1); err != nil {
				return count, err
			}
		case models.DatasetFormatPromptCompletion:
			if err := validatePromptCompletionLine(line, count+1); err != nil {
				return count, err
			}
		default:
			return 0, fmt.Errorf("unknown dataset format %q", format)
		}

		count++
	}

	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scan error: %w", err)
	}

	if count == 0 {
		return 0, fmt.Errorf("empty training artifact")
	}

	return count, nil
}

func validateChatLine(line string, n int) error {
	var example chatExample
	if err := json.Unmarshal([]byte(line), &example); err != nil {
		return fmt.Errorf("line %d: invalid JSON: %w", n, err)
	}

	if len(example.Messages) < 2 {
		return fmt.Errorf("line %d: need at least 2 messages (user + assistant)", n)
	}

	hasUser := false
	hasAssistant := false
	for _, m := range example.Messages {
		switch m.Role {
		case "system", "user", "assistant":
			if m.Role == "user" {
				hasUser = true
			}
			if m.Role == "assistant" {
				hasAssistant = true
			}
		default:
			return fmt.Errorf("line %d: invalid role %q", n, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("line %d: empty content for role %s", n, m.Role)
		}
	}

	if !hasUser || !hasAssistant {
		return fmt.Errorf("line %d: need at least one user and one assistant message", n)
	}
	return nil
}

func validatePromptCompletionLine(line string, n int) error {
	var example promptCompletionExample
	if err := json.Unmarshal([]byte(line), &example); err != nil {
		return fmt.Errorf("line %d: invalid JSON: %w", n, err)
	}
	if example.Prompt == "" || example.Completion == "" {
		return fmt.Errorf("line %d: prompt and completion are both required", n)
	}
	return nil
}
