package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"cronograma/internal/core"

	"github.com/google/uuid"
)

// ExportJobMessage asks the worker to render one plan document. It carries
// the scope and the reference date only; the worker loads the data itself.
type ExportJobMessage struct {
	JobID       string    `json:"job_id"`
	ClientID    string    `json:"client_id"`
	ProjectID   string    `json:"project_id"`
	ClientName  string    `json:"client_name,omitempty"`
	ProjectName string    `json:"project_name,omitempty"`
	Format      string    `json:"format"`
	Reference   time.Time `json:"reference"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewExportJobMessage creates a job with a fresh id.
func NewExportJobMessage(ref core.PlanRef, format string, reference time.Time) *ExportJobMessage {
	return &ExportJobMessage{
		JobID:     uuid.NewString(),
		ClientID:  ref.ClientID,
		ProjectID: ref.ProjectID,
		Format:    format,
		Reference: reference,
		Timestamp: time.Now(),
	}
}

func (m *ExportJobMessage) Ref() core.PlanRef {
	return core.PlanRef{ClientID: m.ClientID, ProjectID: m.ProjectID}
}

func (m *ExportJobMessage) Validate() error {
	if _, err := uuid.Parse(m.JobID); err != nil {
		return fmt.Errorf("job id %q: %w", m.JobID, err)
	}
	if err := m.Ref().Validate(); err != nil {
		return err
	}
	if m.Reference.IsZero() {
		return fmt.Errorf("job %s: missing reference date", m.JobID)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ExportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ExportJobMessageFromJSON decodes and validates a message.
func ExportJobMessageFromJSON(data []byte) (*ExportJobMessage, error) {
	var msg ExportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
