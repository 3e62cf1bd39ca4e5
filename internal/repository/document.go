package repository

import (
	"context"

	"collaborative-editor/internal/domain"
)

// DocumentRepository 是文档内容的持久化存储（键值语义，键为房间 ID）。
type DocumentRepository interface {
	// LoadDocument 读取房间最近一次持久化的内容。
	// 不存在时返回 ErrDocumentNotFound。
	LoadDocument(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error)

	// StoreDocument 覆盖写入房间的内容和修订号，记录不存在时创建。
	StoreDocument(ctx context.Context, snapshot *domain.DocumentSnapshot) error
}
