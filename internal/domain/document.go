package domain

import (
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Generator 以固定站点身份为本地编辑生成字符标识和位置。
type Generator struct {
	site  string
	clock uint64
	rnd   *rand.Rand
}

// NewGenerator 创建一个站点的生成器。
func NewGenerator(site string) *Generator {
	return &Generator{site: site, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Site 返回生成器的站点标识。
func (g *Generator) Site() string { return g.site }

// Atoms 为 text 中每个字符生成位于 left 与 right 之间、依次递增的字符。
func (g *Generator) Atoms(left, right Position, text string) []Atom {
	atoms := make([]Atom, 0, len(text))
	prev := left
	for _, r := range text {
		g.clock++
		pos := GeneratePosition(prev, right, g.site, g.rnd)
		atoms = append(atoms, Atom{ID: CharID{Site: g.site, Clock: g.clock}, Pos: pos, Value: string(r)})
		prev = pos
	}
	return atoms
}

// InsertAt 生成在可见偏移 offset 处插入 text 的结构化操作（不修改序列）。
// 越界的偏移量被截断到文档末尾。
func (g *Generator) InsertAt(seq *Sequence, offset int, text string) Operation {
	if offset > seq.Len() {
		offset = seq.Len()
	}
	atoms := g.Atoms(seq.PositionAt(offset-1), seq.PositionAt(offset), text)
	return Operation{Kind: OpInsert, Atoms: atoms, Offset: offset, Text: text}
}

// DeleteAt 生成删除 [offset, offset+length) 的结构化操作（不修改序列）。
func DeleteAt(seq *Sequence, offset, length int) Operation {
	end := offset + length
	if end > seq.Len() {
		end = seq.Len()
	}
	op := Operation{Kind: OpDelete, Offset: offset}
	for i := offset; i < end; i++ {
		op.IDs = append(op.IDs, seq.At(i).ID)
	}
	op.Length = len(op.IDs)
	return op
}

// Document 是一个房间的权威文档：CRDT 序列 + 修订号。
type Document struct {
	seq      *Sequence
	revision uint64
	gen      *Generator
}

// NewDocument 以给定内容和修订号构建文档，site 用于服务端转换的编辑。
func NewDocument(site, content string, revision uint64) *Document {
	d := &Document{seq: NewSequence(), revision: revision, gen: NewGenerator(site)}
	for _, a := range d.gen.Atoms(nil, nil, content) {
		d.seq.Insert(a)
	}
	return d
}

// Content 返回当前可见文本。
func (d *Document) Content() string { return d.seq.Content() }

// Revision 返回当前修订号。
func (d *Document) Revision() uint64 { return d.revision }

// Sequence 暴露底层序列（只读用途）。
func (d *Document) Sequence() *Sequence { return d.seq }

// Apply 将操作合入文档。
// 返回实际生效的结构化操作（附带偏移量形式的 Edits）；重复投递或没有任何效果时返回 nil，修订号不变。
// 每个生效的操作使修订号恰好加一。
func (d *Document) Apply(op Operation) (*Operation, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}

	var effective Operation
	switch op.Kind {
	case OpInsert:
		effective = Operation{Kind: OpInsert}
		for _, a := range op.Atoms {
			if d.seq.Insert(a) {
				effective.Atoms = append(effective.Atoms, a)
			}
		}
		if len(effective.Atoms) == 0 {
			return nil, nil
		}
		effective.setEdits(insertEdits(d.seq, effective.Atoms))
	case OpDelete:
		effective = Operation{Kind: OpDelete}
		edits := deleteEdits(d.seq, op.IDs)
		for _, id := range op.IDs {
			if d.seq.Delete(id) {
				effective.IDs = append(effective.IDs, id)
			}
		}
		if len(effective.IDs) == 0 {
			return nil, nil
		}
		effective.setEdits(edits)
	case OpInsertText:
		effective = d.gen.InsertAt(d.seq, op.Offset, op.Text)
		for _, a := range effective.Atoms {
			d.seq.Insert(a)
		}
		effective.setEdits([]TextEdit{{Offset: effective.Offset, Text: effective.Text}})
	case OpDeleteRange:
		effective = DeleteAt(d.seq, op.Offset, op.Length)
		if len(effective.IDs) == 0 {
			return nil, nil
		}
		for _, id := range effective.IDs {
			d.seq.Delete(id)
		}
		effective.setEdits([]TextEdit{{Offset: effective.Offset, Length: effective.Length}})
	case OpReplace:
		if *op.BaseRevision != d.revision {
			return nil, ErrStaleRevision
		}
		removed := DeleteAt(d.seq, 0, d.seq.Len())
		for _, id := range removed.IDs {
			d.seq.Delete(id)
		}
		effective = Operation{Kind: OpReplace, IDs: removed.IDs, Content: op.Content}
		effective.Atoms = d.gen.Atoms(nil, nil, op.Content)
		for _, a := range effective.Atoms {
			d.seq.Insert(a)
		}
		var edits []TextEdit
		if len(removed.IDs) > 0 {
			edits = append(edits, TextEdit{Offset: 0, Length: len(removed.IDs)})
		}
		if op.Content != "" {
			edits = append(edits, TextEdit{Offset: 0, Text: op.Content})
		}
		effective.Edits = edits
	}

	d.revision++
	return &effective, nil
}

func (op *Operation) setEdits(edits []TextEdit) {
	op.Edits = edits
	if len(edits) == 1 {
		op.Offset, op.Text, op.Length = edits[0].Offset, edits[0].Text, edits[0].Length
	}
}

// insertEdits 在插入之后计算：按可见偏移升序把新字符分成连续段。
// 偏移是插入后的坐标，按升序依次应用到插入前的文本上结果相同。
func insertEdits(seq *Sequence, atoms []Atom) []TextEdit {
	idx := make([]int, 0, len(atoms))
	for _, a := range atoms {
		if i, ok := seq.IndexOf(a.ID); ok {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	var edits []TextEdit
	for k := 0; k < len(idx); {
		start := k
		var b strings.Builder
		for k < len(idx) && idx[k] == idx[start]+(k-start) {
			b.WriteString(seq.At(idx[k]).Value)
			k++
		}
		edits = append(edits, TextEdit{Offset: idx[start], Text: b.String()})
	}
	return edits
}

// deleteEdits 在删除之前计算：可见字符按连续段分组，偏移从大到小排列，
// 这样依次应用时前面的删除不会影响后面的偏移。
func deleteEdits(seq *Sequence, ids []CharID) []TextEdit {
	seen := make(map[int]struct{}, len(ids))
	idx := make([]int, 0, len(ids))
	for _, id := range ids {
		if i, ok := seq.IndexOf(id); ok {
			if _, dup := seen[i]; !dup {
				seen[i] = struct{}{}
				idx = append(idx, i)
			}
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(idx)))
	var edits []TextEdit
	for k := 0; k < len(idx); {
		end := idx[k]
		n := 1
		for k+n < len(idx) && idx[k+n] == end-n {
			n++
		}
		edits = append(edits, TextEdit{Offset: end - n + 1, Length: n})
		k += n
	}
	return edits
}
