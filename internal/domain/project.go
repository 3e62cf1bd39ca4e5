package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultProjectTitle 未指定标题时使用。
	DefaultProjectTitle = "Untitled Project"
	// MaxRoomIDLength 房间 ID 的最大长度，与 Project.ID / DocumentVersion.ProjectID 的列宽一致。
	MaxRoomIDLength = 128
)

// Project 是一个可协作编辑的项目记录，ID 同时也是房间 ID。
type Project struct {
	ID            string    `gorm:"primaryKey;size:128"`       // 项目 ID (= 房间 ID)
	Title         string    `gorm:"size:255;not null"`         // 标题
	OwnerID       string    `gorm:"index;size:64"`             // 创建者，由房间隐式创建时为空
	Collaborators string    `gorm:"type:text"`                 // 协作者 ID 列表，JSON 数组
	Content       string    `gorm:"type:longtext"`             // 最近一次持久化的文档内容
	Revision      uint64    `gorm:"not null;default:0"`        // 与 Content 对应的修订号
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime;index"`
}

// ParseCollaborators 将 Collaborators 字段解析为 ID 列表。
func (p *Project) ParseCollaborators() ([]string, error) {
	if p.Collaborators == "" || p.Collaborators == "null" {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal([]byte(p.Collaborators), &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal collaborators: %w", err)
	}
	return ids, nil
}

// SetCollaborators 序列化 ID 列表到 Collaborators 字段。
func (p *Project) SetCollaborators(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	bytes, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal collaborators: %w", err)
	}
	p.Collaborators = string(bytes)
	return nil
}

// CanAccess 判断用户是否为所有者或协作者。没有所有者的项目对所有人开放。
func (p *Project) CanAccess(userID string) bool {
	if p.OwnerID == "" || p.OwnerID == userID {
		return true
	}
	ids, err := p.ParseCollaborators()
	if err != nil {
		return false
	}
	for _, id := range ids {
		if id == userID {
			return true
		}
	}
	return false
}
