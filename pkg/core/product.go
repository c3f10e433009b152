package core

import "time"

// Conversation is a chat thread owned by an agent.
type Conversation struct {
	ID        string    `gorm:"primaryKey;size:36"`
	AgentID   string    `gorm:"index;size:36;not null"`
	Status    string    `gorm:"index;size:20;default:'active'"`
	Title     string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Conversation status values.
const (
	ConversationActive   = "active"
	ConversationArchived = "archived"
)

// Message is one entry in a conversation.
type Message struct {
	ID             string    `gorm:"primaryKey;size:36"`
	ConversationID string    `gorm:"index;size:36;not null"`
	Role           string    `gorm:"size:20;not null"`
	Content        string    `gorm:"type:text"`
	Metadata       []byte    `gorm:"type:bytes"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

// Notification is a user-facing alert pointing at a linked entity.
type Notification struct {
	ID        string     `gorm:"primaryKey;size:36"`
	AgentID   string     `gorm:"index;size:36;not null"`
	Type      string     `gorm:"size:40;not null"`
	Title     string     `gorm:"size:255"`
	Content   string     `gorm:"type:text"`
	LinkType  string     `gorm:"size:40"`
	LinkID    string     `gorm:"size:36"`
	ReadAt    *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

// Notification link targets.
const (
	LinkConversation = "conversation"
	LinkTask         = "task"
	LinkJob          = "job"
)

// Task is a unit of tracked work in the surrounding product.
type Task struct {
	ID          string     `gorm:"primaryKey;size:36"`
	AgentID     string     `gorm:"index;size:36;not null"`
	Title       string     `gorm:"size:255;not null"`
	Description string     `gorm:"type:text"`
	Status      string     `gorm:"index;size:20;default:'todo'"`
	DueAt       *time.Time `gorm:"index"`
	// DedupeKey makes replayed task-creation tool calls idempotent.
	DedupeKey string    `gorm:"index;size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Comment is a note attached to a task.
type Comment struct {
	ID        string    `gorm:"primaryKey;size:36"`
	TaskID    string    `gorm:"index;size:36;not null"`
	AuthorID  string    `gorm:"size:36"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// MemoryHit is one result from the external memory search capability.
type MemoryHit struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// AgentProfile is the resolved identity for an agent_task run.
type AgentProfile struct {
	ID           string
	Name         string
	SystemPrompt string
}
