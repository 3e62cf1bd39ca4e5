package domain

import "time"

// DocumentSnapshot 是写入持久化存储 / 缓存的文档快照。
type DocumentSnapshot struct {
	RoomID    string    `json:"roomId"`
	Content   string    `json:"content"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}
