package domain

import "errors"

var (
	// ErrInvalidOperation 操作结构不合法
	ErrInvalidOperation = errors.New("domain: invalid operation")
	// ErrStaleRevision 全量替换基于的修订号已经过期
	ErrStaleRevision = errors.New("domain: stale revision")
)
