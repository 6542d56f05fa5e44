package model

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is immutable once written. Seq orders messages within a
// conversation and is unique per conversation.
type Message struct {
	ID             string          `gorm:"primaryKey;size:36" json:"id"`
	ConversationID string          `gorm:"size:36;not null;uniqueIndex:idx_message_conv_seq,priority:1" json:"conversation_id"`
	Seq            int             `gorm:"not null;uniqueIndex:idx_message_conv_seq,priority:2" json:"-"`
	Role           string          `gorm:"size:16;not null" json:"role"`
	Content        string          `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time       `json:"created_at"`
	Sources        []MessageSource `gorm:"constraint:OnDelete:CASCADE" json:"sources,omitempty"`
}

// MessageSource is a source attribution frozen at answer time. It keeps copies
// of the chunk text and filename, not live references.
type MessageSource struct {
	ID         uint    `gorm:"primaryKey" json:"-"`
	MessageID  string  `gorm:"size:36;not null;index" json:"-"`
	Position   int     `gorm:"not null" json:"-"`
	ChunkID    string  `gorm:"size:36;not null" json:"chunk_id"`
	DocumentID string  `gorm:"size:36;not null" json:"document_id"`
	Filename   string  `gorm:"size:255;not null" json:"filename"`
	ChunkIndex int     `gorm:"not null" json:"chunk_index"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	Similarity float64 `gorm:"not null" json:"similarity"`
}
