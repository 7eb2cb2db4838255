// Package memory provides in-memory gateway implementations for development
// and tests.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/leadrun/leadrun/pkg/models"
)

// LeadStore is a mutex-guarded in-memory lead store.
type LeadStore struct {
	mu      sync.RWMutex
	leads   map[string]*models.Lead
	history []models.StageChange
	tags    map[string]string // tag id -> name, for resolving added tags
}

// NewLeadStore creates an empty in-memory lead store.
func NewLeadStore() *LeadStore {
	return &LeadStore{
		leads: make(map[string]*models.Lead),
		tags:  make(map[string]string),
	}
}

// RegisterTag records a tag name so adds resolve names, not just ids.
func (s *LeadStore) RegisterTag(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tags[id] = name
}

// PutLead inserts or replaces a lead.
func (s *LeadStore) PutLead(lead *models.Lead) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.leads[lead.ID] = lead
}

// LeadByID returns a copy of the lead so callers hold a stable snapshot.
func (s *LeadStore) LeadByID(_ context.Context, id string) (*models.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, ErrLeadNotFound)
	}

	snapshot := *lead
	snapshot.Tags = append([]models.Tag(nil), lead.Tags...)

	if lead.Attributes != nil {
		snapshot.Attributes = make(map[string]any, len(lead.Attributes))
		for k, v := range lead.Attributes {
			snapshot.Attributes[k] = v
		}
	}

	return &snapshot, nil
}

func (s *LeadStore) SetStage(_ context.Context, leadID, stageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, ErrLeadNotFound)
	}

	lead.StageID = stageID
	lead.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *LeadStore) AppendStageHistory(_ context.Context, change models.StageChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, change)

	return nil
}

// StageHistory returns a copy of the recorded stage changes.
func (s *LeadStore) StageHistory() []models.StageChange {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]models.StageChange(nil), s.history...)
}

func (s *LeadStore) AddTag(_ context.Context, leadID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, ErrLeadNotFound)
	}

	if lead.HasTag(tagID) {
		return nil
	}

	lead.Tags = append(lead.Tags, models.Tag{ID: tagID, Name: s.tags[tagID]})
	lead.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *LeadStore) RemoveTag(_ context.Context, leadID, tagID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, ErrLeadNotFound)
	}

	tags := lead.Tags[:0]

	for _, tag := range lead.Tags {
		if tag.ID != tagID {
			tags = append(tags, tag)
		}
	}

	lead.Tags = tags
	lead.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *LeadStore) SetResponsible(_ context.Context, leadID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lead, ok := s.leads[leadID]
	if !ok {
		return fmt.Errorf("lead %s: %w", leadID, ErrLeadNotFound)
	}

	lead.ResponsibleID = userID
	lead.UpdatedAt = time.Now().UTC()

	return nil
}

// SentMessage is one message captured by the messaging gateway.
type SentMessage struct {
	ChannelID string
	Address   string
	Text      string
}

// MessagingGateway records outbound messages instead of delivering them.
type MessagingGateway struct {
	mu       sync.Mutex
	messages []SentMessage

	// FailWith, when set, makes every send fail with this error.
	FailWith error
}

// NewMessagingGateway creates a capturing messaging gateway.
func NewMessagingGateway() *MessagingGateway {
	return &MessagingGateway{}
}

func (g *MessagingGateway) SendText(_ context.Context, channelID, address, text string) error {
	if g.FailWith != nil {
		return g.FailWith
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.messages = append(g.messages, SentMessage{ChannelID: channelID, Address: address, Text: text})

	return nil
}

// Messages returns the captured messages.
func (g *MessagingGateway) Messages() []SentMessage {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]SentMessage(nil), g.messages...)
}

// NotificationService logs notifications and keeps them for inspection.
type NotificationService struct {
	mu            sync.Mutex
	logger        *slog.Logger
	notifications []string
}

// NewNotificationService creates a logging notification service.
func NewNotificationService(logger *slog.Logger) *NotificationService {
	return &NotificationService{logger: logger}
}

func (n *NotificationService) NotifyResponsible(ctx context.Context, leadID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.notifications = append(n.notifications, leadID+": "+message)

	if n.logger != nil {
		n.logger.InfoContext(ctx, "Notifying responsible", "lead_id", leadID, "message", message)
	}

	return nil
}

// Notifications returns the captured notifications.
func (n *NotificationService) Notifications() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.notifications...)
}

// Task is one task captured by the task service.
type Task struct {
	LeadID string
	Text   string
	DueAt  time.Time
}

// TaskService records created tasks.
type TaskService struct {
	mu    sync.Mutex
	tasks []Task
}

// NewTaskService creates a capturing task service.
func NewTaskService() *TaskService {
	return &TaskService{}
}

func (t *TaskService) CreateTask(_ context.Context, leadID, text string, dueAt time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tasks = append(t.tasks, Task{LeadID: leadID, Text: text, DueAt: dueAt})

	return nil
}

// Tasks returns the captured tasks.
func (t *TaskService) Tasks() []Task {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Task(nil), t.tasks...)
}
