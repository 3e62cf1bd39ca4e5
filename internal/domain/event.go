package domain

// EventType 下行事件类型。
type EventType string

const (
	EventInit           EventType = "init"
	EventEdit           EventType = "edit"
	EventPresenceJoined EventType = "presence-joined"
	EventPresenceCursor EventType = "presence-cursor"
	EventPresenceLeft   EventType = "presence-left"
	EventSaved          EventType = "saved"
	EventError          EventType = "error"
)

// DocumentState 是 init 事件中携带的文档状态。
// Atoms 是可见字符及其 CRDT 标识，客户端据此建立副本并生成结构化操作。
type DocumentState struct {
	Content  string `json:"content"`
	Revision uint64 `json:"revision"`
	Atoms    []Atom `json:"atoms"`
}

// Event 是推送给会话的消息，字段按类型选填。
type Event struct {
	Type      EventType       `json:"type"`
	RoomID    string          `json:"roomId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Identity  *Identity       `json:"identity,omitempty"`
	Cursor    *Cursor         `json:"cursor,omitempty"`
	Operation *Operation      `json:"operation,omitempty"`
	Revision  uint64          `json:"revision,omitempty"`
	Document  *DocumentState  `json:"document,omitempty"`
	Presence  []PresenceEntry `json:"presence,omitempty"`
	By        string          `json:"by,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Message   string          `json:"message,omitempty"`
}
