package conversations

import "time"

const (
	KindChat  = "chat"
	KindImage = "image"
)

// Conversation groups the messages of one chat thread or one image session.
// Owned by an account and purged with it.
type Conversation struct {
	ID        string `gorm:"primaryKey;type:uuid"`
	AccountID string `gorm:"type:uuid;index:idx_conversations_account_id;not null"`
	Kind      string `gorm:"type:varchar(10);not null;default:'chat'"`
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []Message `gorm:"foreignKey:ConversationID"`
}

type Message struct {
	ID             uint   `gorm:"primaryKey"`
	ConversationID string `gorm:"type:uuid;index:idx_messages_conversation_id;not null"`
	Role           string `gorm:"type:varchar(20);not null"`
	Content        string `gorm:"type:text;not null"`
	CreatedAt      time.Time
}
