package domain

import (
	"math/rand"
	"sort"
	"strings"
)

const (
	// PositionBase 每一层标识符数字的上界（不含）。
	PositionBase uint32 = 1 << 16
	// positionBoundary 生成新位置时在下界之上的最大跨度，偏向顺序输入。
	positionBoundary uint32 = 16
)

// CharID 唯一标识一个字符：站点（会话或服务端实例）+ 该站点内单调递增的时钟。
type CharID struct {
	Site  string `json:"site"`
	Clock uint64 `json:"clock"`
}

// Less 定义 CharID 的全序，用于位置相同时的决胜。
func (c CharID) Less(o CharID) bool {
	if c.Site != o.Site {
		return c.Site < o.Site
	}
	return c.Clock < o.Clock
}

// Ident 是位置中的一层：数字 + 生成它的站点。
type Ident struct {
	Digit uint32 `json:"d"`
	Site  string `json:"s"`
}

func compareIdent(a, b Ident) int {
	switch {
	case a.Digit < b.Digit:
		return -1
	case a.Digit > b.Digit:
		return 1
	case a.Site < b.Site:
		return -1
	case a.Site > b.Site:
		return 1
	}
	return 0
}

// Position 是稠密的有序标识符，按层字典序比较，前缀更小。
type Position []Ident

// Compare 返回 -1 / 0 / 1。
func (p Position) Compare(q Position) int {
	for i := 0; i < len(p) && i < len(q); i++ {
		if c := compareIdent(p[i], q[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(p) < len(q):
		return -1
	case len(p) > len(q):
		return 1
	}
	return 0
}

// GeneratePosition 在 left 与 right 之间生成一个新位置。
// left 为 nil 表示文档开头，right 为 nil 表示文档末尾；要求 left < right。
func GeneratePosition(left, right Position, site string, rnd *rand.Rand) Position {
	out := make(Position, 0, len(left)+1)
	bounded := right != nil
	for i := 0; ; i++ {
		lo := Ident{}
		if i < len(left) {
			lo = left[i]
		}
		hi := PositionBase
		if bounded && i < len(right) {
			hi = right[i].Digit
		}
		if hi > lo.Digit+1 {
			span := hi - lo.Digit - 1
			if span > positionBoundary {
				span = positionBoundary
			}
			return append(out, Ident{Digit: lo.Digit + 1 + uint32(rnd.Int63n(int64(span))), Site: site})
		}
		// 本层没有空隙，沿 left 下降一层
		out = append(out, lo)
		if bounded && i < len(right) && compareIdent(lo, right[i]) < 0 {
			bounded = false
		}
	}
}

// Atom 是序列中的一个字符。
type Atom struct {
	ID    CharID   `json:"id"`
	Pos   Position `json:"pos"`
	Value string   `json:"value"`
}

func atomLess(a, b Atom) bool {
	if c := a.Pos.Compare(b.Pos); c != 0 {
		return c < 0
	}
	return a.ID.Less(b.ID)
}

// Sequence 是基于操作的文本 CRDT（Logoot 风格）。
// 插入按 CharID 去重，删除以墓碑记录，因此任意顺序、重复投递都会收敛到同一内容。
// Sequence 本身不是并发安全的，由持有它的房间加锁保护。
type Sequence struct {
	atoms      []Atom // 可见字符，按 (Pos, ID) 排序
	seen       map[CharID]struct{}
	tombstones map[CharID]struct{}
	visible    map[CharID]Position
}

// NewSequence 创建空序列。
func NewSequence() *Sequence {
	return &Sequence{
		seen:       make(map[CharID]struct{}),
		tombstones: make(map[CharID]struct{}),
		visible:    make(map[CharID]Position),
	}
}

// Insert 合入一个字符，返回状态是否发生变化。
// 已经见过的 ID 不会重复插入；已被删除（墓碑）的 ID 只记为已见。
func (s *Sequence) Insert(a Atom) bool {
	if _, ok := s.seen[a.ID]; ok {
		return false
	}
	s.seen[a.ID] = struct{}{}
	if _, dead := s.tombstones[a.ID]; dead {
		return true
	}
	i := sort.Search(len(s.atoms), func(i int) bool { return !atomLess(s.atoms[i], a) })
	s.atoms = append(s.atoms, Atom{})
	copy(s.atoms[i+1:], s.atoms[i:])
	s.atoms[i] = a
	s.visible[a.ID] = a.Pos
	return true
}

// Delete 按 ID 删除字符，返回状态是否发生变化。删除可以先于插入到达。
func (s *Sequence) Delete(id CharID) bool {
	if _, dead := s.tombstones[id]; dead {
		return false
	}
	s.tombstones[id] = struct{}{}
	pos, ok := s.visible[id]
	if !ok {
		return true
	}
	delete(s.visible, id)
	probe := Atom{ID: id, Pos: pos}
	i := sort.Search(len(s.atoms), func(i int) bool { return !atomLess(s.atoms[i], probe) })
	if i < len(s.atoms) && s.atoms[i].ID == id {
		s.atoms = append(s.atoms[:i], s.atoms[i+1:]...)
	}
	return true
}

// Len 返回可见字符数。
func (s *Sequence) Len() int { return len(s.atoms) }

// At 返回第 i 个可见字符。
func (s *Sequence) At(i int) Atom { return s.atoms[i] }

// IndexOf 返回字符的可见偏移，不可见时返回 false。
func (s *Sequence) IndexOf(id CharID) (int, bool) {
	pos, ok := s.visible[id]
	if !ok {
		return -1, false
	}
	probe := Atom{ID: id, Pos: pos}
	i := sort.Search(len(s.atoms), func(i int) bool { return !atomLess(s.atoms[i], probe) })
	if i < len(s.atoms) && s.atoms[i].ID == id {
		return i, true
	}
	return -1, false
}

// Atoms 返回可见字符的副本，按文档顺序排列。
func (s *Sequence) Atoms() []Atom {
	out := make([]Atom, len(s.atoms))
	copy(out, s.atoms)
	return out
}

// PositionAt 返回第 i 个可见字符的位置；越界时返回 nil（即文档边界）。
func (s *Sequence) PositionAt(i int) Position {
	if i < 0 || i >= len(s.atoms) {
		return nil
	}
	return s.atoms[i].Pos
}

// Content 拼接所有可见字符。
func (s *Sequence) Content() string {
	var b strings.Builder
	for _, a := range s.atoms {
		b.WriteString(a.Value)
	}
	return b.String()
}
