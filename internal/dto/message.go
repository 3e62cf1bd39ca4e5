package dto

import "collaborative-editor/internal/domain"

// 上行消息类型
const (
	MessageJoin   = "join"
	MessageEdit   = "edit"
	MessageCursor = "cursor"
	MessageSave   = "save"
	MessageLeave  = "leave"
)

// IncomingMessage 是客户端通过 WebSocket 发送的一帧，字段按 Type 选填。
type IncomingMessage struct {
	Type         string            `json:"type"`
	RoomID       string            `json:"roomId,omitempty"`
	Name         string            `json:"name,omitempty"` // join 时的展示名
	Operation    *domain.Operation `json:"operation,omitempty"`
	Cursor       *domain.Cursor    `json:"cursor,omitempty"`
	Content      *string           `json:"content,omitempty"`
	BaseRevision *uint64           `json:"baseRevision,omitempty"`
}

// ErrorEvent 构造下行 error 事件。
func ErrorEvent(roomID, kind, message string) domain.Event {
	return domain.Event{
		Type:    domain.EventError,
		RoomID:  roomID,
		Kind:    kind,
		Message: message,
	}
}

// CreateProjectRequest 创建项目请求体
type CreateProjectRequest struct {
	Title string `json:"title" binding:"max=255"`
}

// UpdateProjectRequest 更新项目请求体，字段为空表示不修改
type UpdateProjectRequest struct {
	Title         string   `json:"title" binding:"max=255"`
	Collaborators []string `json:"collaborators"`
}

// ProjectResponse 项目详情
type ProjectResponse struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	OwnerID       string   `json:"ownerId"`
	Collaborators []string `json:"collaborators"`
	Content       string   `json:"content"`
	Revision      uint64   `json:"revision"`
	CreatedAt     int64    `json:"createdAt"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// NewProjectResponse 从领域对象构造响应。
func NewProjectResponse(p *domain.Project) ProjectResponse {
	collaborators, err := p.ParseCollaborators()
	if err != nil {
		collaborators = []string{}
	}
	return ProjectResponse{
		ID:            p.ID,
		Title:         p.Title,
		OwnerID:       p.OwnerID,
		Collaborators: collaborators,
		Content:       p.Content,
		Revision:      p.Revision,
		CreatedAt:     p.CreatedAt.Unix(),
		UpdatedAt:     p.UpdatedAt.Unix(),
	}
}

// VersionResponse 历史版本摘要
type VersionResponse struct {
	ID          uint   `json:"id"`
	Revision    uint64 `json:"revision"`
	ContentHash string `json:"contentHash"`
	Content     string `json:"content"`
	CreatedBy   string `json:"createdBy"`
	CreatedAt   int64  `json:"createdAt"`
}

// NewVersionResponse 从领域对象构造响应。
func NewVersionResponse(v domain.DocumentVersion) VersionResponse {
	return VersionResponse{
		ID:          v.ID,
		Revision:    v.Revision,
		ContentHash: v.ContentHash,
		Content:     v.Content,
		CreatedBy:   v.CreatedBy,
		CreatedAt:   v.CreatedAt.Unix(),
	}
}
