package domain

import "time"

// SessionKey identifies the wizard state of one user of one bot.
type SessionKey struct {
	BotID  string
	UserID string
}

// String returns the canonical "bot:user" form used for locks and storage keys.
func (k SessionKey) String() string {
	return k.BotID + ":" + k.UserID
}

// WizardState is the persisted progress of an active wizard.
// Invariant: 0 <= StepIndex < len(flow.Steps) while persisted; a wizard that
// reaches len(flow.Steps) is deleted, never saved.
type WizardState struct {
	// FlowID is the entry command of the active flow.
	FlowID    string            `json:"flow_id"`
	StepIndex int               `json:"step_index"`
	Vars      map[string]string `json:"vars"`
	StartedAt time.Time         `json:"started_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewWizardState creates a clean state positioned at the first step.
func NewWizardState(flowID string) *WizardState {
	now := time.Now().UTC()
	return &WizardState{
		FlowID:    flowID,
		Vars:      make(map[string]string),
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy safe for mutation.
func (s *WizardState) Clone() *WizardState {
	if s == nil {
		return nil
	}
	next := *s
	next.Vars = make(map[string]string, len(s.Vars))
	for k, v := range s.Vars {
		next.Vars[k] = v
	}
	return &next
}
