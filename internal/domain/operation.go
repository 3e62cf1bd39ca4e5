package domain

import (
	"fmt"
	"unicode/utf8"
)

// OpKind 编辑操作的类型。
type OpKind string

const (
	// OpInsert 携带 CRDT 标识的字符插入（由持有副本的客户端生成）。
	OpInsert OpKind = "insert"
	// OpDelete 按 CharID 删除字符。
	OpDelete OpKind = "delete"
	// OpInsertText 基于偏移量的插入，由服务端转换为 OpInsert。
	OpInsertText OpKind = "insert_text"
	// OpDeleteRange 基于偏移量的删除，由服务端转换为 OpDelete。
	OpDeleteRange OpKind = "delete_range"
	// OpReplace 全量内容替换，必须基于当前修订号。
	OpReplace OpKind = "replace"
)

// TextEdit 是一段基于偏移量的等价编辑：在 Offset 处删除 Length 个字符或插入 Text。
type TextEdit struct {
	Offset int    `json:"offset"`
	Text   string `json:"text,omitempty"`
	Length int    `json:"length,omitempty"`
}

// Operation 是客户端提交、服务端广播的编辑操作。
// 广播出去的操作总是结构化的（Atoms / IDs），并附带 Edits：按顺序应用到广播前的文本上
// 即得到广播后的文本，供没有 CRDT 副本的客户端使用。只有一段编辑时 Offset / Text / Length 与之相同。
type Operation struct {
	Kind         OpKind     `json:"kind"`
	Atoms        []Atom     `json:"atoms,omitempty"`
	IDs          []CharID   `json:"ids,omitempty"`
	Offset       int        `json:"offset,omitempty"`
	Text         string     `json:"text,omitempty"`
	Length       int        `json:"length,omitempty"`
	Content      string     `json:"content,omitempty"`
	BaseRevision *uint64    `json:"baseRevision,omitempty"`
	Edits        []TextEdit `json:"edits,omitempty"`
}

// Validate 检查操作的结构是否合法，不涉及文档状态。
func (op Operation) Validate() error {
	switch op.Kind {
	case OpInsert:
		if len(op.Atoms) == 0 {
			return fmt.Errorf("%w: insert without atoms", ErrInvalidOperation)
		}
		for _, a := range op.Atoms {
			if a.ID.Site == "" || len(a.Pos) == 0 {
				return fmt.Errorf("%w: atom without id or position", ErrInvalidOperation)
			}
			if err := validatePosition(a.Pos); err != nil {
				return err
			}
			if utf8.RuneCountInString(a.Value) != 1 {
				return fmt.Errorf("%w: atom value must be a single character", ErrInvalidOperation)
			}
		}
	case OpDelete:
		if len(op.IDs) == 0 {
			return fmt.Errorf("%w: delete without ids", ErrInvalidOperation)
		}
	case OpInsertText:
		if op.Text == "" || op.Offset < 0 {
			return fmt.Errorf("%w: insert_text needs text and a non-negative offset", ErrInvalidOperation)
		}
	case OpDeleteRange:
		if op.Length <= 0 || op.Offset < 0 {
			return fmt.Errorf("%w: delete_range needs a positive length and a non-negative offset", ErrInvalidOperation)
		}
	case OpReplace:
		if op.BaseRevision == nil {
			return fmt.Errorf("%w: replace without baseRevision", ErrInvalidOperation)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	return nil
}

// validatePosition 要求每层数字小于 PositionBase，且最后一层不为 0。
// 最后一层为 0 的位置与其前缀之间没有空隙，会破坏 GeneratePosition 的上下界。
func validatePosition(pos Position) error {
	for _, id := range pos {
		if id.Digit >= PositionBase {
			return fmt.Errorf("%w: position digit %d out of range", ErrInvalidOperation, id.Digit)
		}
	}
	if pos[len(pos)-1].Digit == 0 {
		return fmt.Errorf("%w: position must not end with a zero digit", ErrInvalidOperation)
	}
	return nil
}

// ReplaceOp 构造一个全量替换操作。
func ReplaceOp(content string, base uint64) Operation {
	return Operation{Kind: OpReplace, Content: content, BaseRevision: &base}
}
