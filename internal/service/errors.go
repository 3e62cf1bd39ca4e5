package service

import (
	"errors"

	"collaborative-editor/internal/domain"
)

var (
	ErrInvalidRoomID    = errors.New("invalid room id")
	ErrUnknownRoom      = errors.New("unknown room")
	ErrSessionNotFound  = errors.New("session not found")
	ErrStaleRevision    = domain.ErrStaleRevision
	ErrInvalidOperation = domain.ErrInvalidOperation
	ErrPersistenceWrite = errors.New("persistence write failed") // 只用于日志和统计，不下发给编辑中的客户端
	ErrDocumentLoad     = errors.New("failed to load document")
	ErrProjectNotFound  = errors.New("project not found")
	ErrForbidden        = errors.New("access to project denied")
	ErrInternalServer   = errors.New("internal server error")
)

// 下行 error 事件里的 kind
const (
	KindInvalidRoomID    = "InvalidRoomId"
	KindUnknownRoom      = "UnknownRoom"
	KindStaleRevision    = "StaleRevision"
	KindInvalidOperation = "InvalidOperation"
	KindInvalidMessage   = "InvalidMessage"
	KindRateLimited      = "RateLimited"
	KindForbidden        = "Forbidden"
	KindInternal         = "Internal"
)

// ErrorKind 将核心错误映射为客户端可见的错误类型。
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRoomID):
		return KindInvalidRoomID
	case errors.Is(err, ErrUnknownRoom), errors.Is(err, ErrSessionNotFound):
		return KindUnknownRoom
	case errors.Is(err, ErrStaleRevision):
		return KindStaleRevision
	case errors.Is(err, ErrInvalidOperation):
		return KindInvalidOperation
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindInternal
	}
}
