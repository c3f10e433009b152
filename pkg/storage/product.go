package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oakline/schedcore/pkg/core"
)

// ProductStore is the GORM-backed conversation, notification, and task
// surface the actions write to. It implements core.ConversationStore,
// core.NotificationSink, and core.TaskStore.
type ProductStore struct {
	db *gorm.DB
}

// NewProductStore creates a new GORM-backed product store.
func NewProductStore(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

// Migrate creates the conversation, message, notification, task, and
// comment tables.
func (s *ProductStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(
		&core.Conversation{},
		&core.Message{},
		&core.Notification{},
		&core.Task{},
		&core.Comment{},
	)
}

// FindOrCreateActiveConversation returns the agent's most recently used
// active conversation, creating one when none exists.
func (s *ProductStore) FindOrCreateActiveConversation(ctx context.Context, agentID string) (*core.Conversation, error) {
	var conv core.Conversation
	err := s.db.WithContext(ctx).
		Where("agent_id = ? AND status = ?", agentID, core.ConversationActive).
		Order("updated_at DESC").
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = core.Conversation{
		ID:      uuid.New().String(),
		AgentID: agentID,
		Status:  core.ConversationActive,
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation opens a fresh conversation for an agent. Used by
// agent_task runs, which get their own thread instead of reusing the
// active one.
func (s *ProductStore) CreateConversation(ctx context.Context, agentID, title string) (*core.Conversation, error) {
	conv := &core.Conversation{
		ID:      uuid.New().String(),
		AgentID: agentID,
		Status:  core.ConversationActive,
		Title:   title,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, err
	}
	return conv, nil
}

// InsertMessage appends a message to a conversation.
func (s *ProductStore) InsertMessage(ctx context.Context, conversationID, role, content string, metadata map[string]any) (*core.Message, error) {
	var meta []byte
	if len(metadata) > 0 {
		var err error
		meta, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal message metadata: %w", err)
		}
	}

	msg := &core.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       meta,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// CreateNotification persists a user-facing notification.
func (s *ProductStore) CreateNotification(ctx context.Context, n *core.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(n).Error
}

// GetTask retrieves a task by ID, or (nil, nil) when it does not exist.
func (s *ProductStore) GetTask(ctx context.Context, taskID string) (*core.Task, error) {
	var task core.Task
	err := s.db.WithContext(ctx).First(&task, "id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// CreateTask persists a task. When a dedupe key is set and a task with
// the same key already exists for the agent, the existing task is
// adopted instead of creating a duplicate.
func (s *ProductStore) CreateTask(ctx context.Context, t *core.Task) error {
	if t.DedupeKey != "" {
		var existing core.Task
		err := s.db.WithContext(ctx).
			Where("agent_id = ? AND dedupe_key = ?", t.AgentID, t.DedupeKey).
			First(&existing).Error
		if err == nil {
			*t = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = "todo"
	}
	return s.db.WithContext(ctx).Create(t).Error
}

// UpdateTaskStatus sets a task's status.
func (s *ProductStore) UpdateTaskStatus(ctx context.Context, taskID, status string) error {
	result := s.db.WithContext(ctx).
		Model(&core.Task{}).
		Where("id = ?", taskID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

// AddComment attaches a comment to a task.
func (s *ProductStore) AddComment(ctx context.Context, c *core.Comment) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return s.db.WithContext(ctx).Create(c).Error
}
