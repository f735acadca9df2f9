package queue

import (
	"testing"

	"github.com/google/uuid"
)

func TestPayloadValidation(t *testing.T) {
	id := uuid.New()
	tenantID := uuid.New()
	projectID := uuid.New()

	cases := []struct {
		name    string
		payload interface{ Validate() error }
		wantErr bool
	}{
		{"dataset ok", DatasetBuildPayload{DatasetID: id, TenantID: tenantID, ProjectID: projectID}, false},
		{"dataset missing id", DatasetBuildPayload{TenantID: tenantID, ProjectID: projectID}, true},
		{"dataset missing tenant", DatasetBuildPayload{DatasetID: id, ProjectID: projectID}, true},
		{"eval ok", EvalRunPayload{EvalRunID: id, TenantID: tenantID, ProjectID: projectID}, false},
		{"eval missing id", EvalRunPayload{TenantID: tenantID, ProjectID: projectID}, true},
		{"finetune ok", FinetuneRunPayload{JobID: id, TenantID: tenantID, ProjectID: projectID}, false},
		{"finetune missing project", FinetuneRunPayload{JobID: id, TenantID: tenantID}, true},
		{"promotion ok", PromotionDecidePayload{DecisionID: id, TenantID: tenantID, ProjectID: projectID}, false},
		{"promotion missing id", PromotionDecidePayload{TenantID: tenantID, ProjectID: projectID}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.payload.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
