package domain

// Identity 是会话在房间内的展示身份，加入时分配，之后不可变。
type Identity struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Cursor 光标位置（行、列均从 0 开始）。
type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// PresenceEntry 是一个会话的在线状态。Cursor 在首次上报前为 nil。
type PresenceEntry struct {
	SessionID string   `json:"sessionId"`
	Identity  Identity `json:"identity"`
	Cursor    *Cursor  `json:"cursor,omitempty"`
}
