package history

import "time"

// 历史记录中的角色，与前端约定一致
const (
	RoleHuman    = "human"
	RoleAI       = "ai"
	RoleSystem   = "system"
	RoleMetadata = "metadata"
)

// Message 是一条历史记录
type Message struct {
	Role      string    `json:"role" bson:"role"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Content   string    `json:"content,omitempty" bson:"content,omitempty"`
	Name      string    `json:"name,omitempty" bson:"name,omitempty"`
	Avatar    string    `json:"avatar,omitempty" bson:"avatar,omitempty"`
}

// Info 描述一段历史，用于列表展示
type Info struct {
	UID           string    `json:"uid"`
	LatestMessage *Message  `json:"latest_message,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
