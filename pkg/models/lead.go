package models

import "time"

// AutomationAuthorID attributes automation-made changes in history records.
const AutomationAuthorID = "automation"

// Tag is a label attached to a lead.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Lead is the entity automations run against: the source of condition inputs
// and the target of side effects. A Lead value is a point-in-time snapshot;
// handlers re-read through the lead store when freshness matters.
type Lead struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Phone         string         `json:"phone,omitempty"`
	StageID       string         `json:"stage_id"`
	ResponsibleID string         `json:"responsible_id,omitempty"`
	ChannelID     string         `json:"channel_id,omitempty"`
	MessengerID   string         `json:"messenger_id,omitempty"`
	Tags          []Tag          `json:"tags,omitempty"`
	Attributes    map[string]any `json:"attributes,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// TagIDs returns the lead's tag ids.
func (l *Lead) TagIDs() []string {
	ids := make([]string, 0, len(l.Tags))
	for _, tag := range l.Tags {
		ids = append(ids, tag.ID)
	}

	return ids
}

// TagValues returns the derived multi-valued "tags" field: tag names union
// tag ids.
func (l *Lead) TagValues() []string {
	values := make([]string, 0, len(l.Tags)*2)

	for _, tag := range l.Tags {
		if tag.Name != "" {
			values = append(values, tag.Name)
		}

		if tag.ID != "" {
			values = append(values, tag.ID)
		}
	}

	return values
}

// HasTag reports whether the lead carries the given tag id.
func (l *Lead) HasTag(tagID string) bool {
	for _, tag := range l.Tags {
		if tag.ID == tagID {
			return true
		}
	}

	return false
}

// StageChange is an append-only history record of a stage transition.
type StageChange struct {
	LeadID      string    `json:"lead_id"`
	FromStageID string    `json:"from_stage_id"`
	ToStageID   string    `json:"to_stage_id"`
	AuthorID    string    `json:"author_id"`
	ChangedAt   time.Time `json:"changed_at"`
}
