package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DocumentVersion 是一次显式保存留下的历史版本。
type DocumentVersion struct {
	ID          uint      `gorm:"primaryKey"`
	ProjectID   string    `gorm:"index;size:128;not null"`
	Content     string    `gorm:"type:longtext"`
	ContentHash string    `gorm:"size:64;index"`
	Revision    uint64    `gorm:"not null"`
	CreatedBy   string    `gorm:"size:64"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
}

// ContentHash 计算内容的 sha256 十六进制摘要。
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
