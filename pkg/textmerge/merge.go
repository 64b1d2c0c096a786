// Package textmerge 行级三方合并
package textmerge

import (
	"bytes"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	MarkerOurs   = "<<<<<<< ours"
	MarkerSep    = "======="
	MarkerTheirs = ">>>>>>> theirs"
)

// LineMerger diff3：分别求 base->ours 与 base->theirs 的行级差异，
// 只改动一侧的区域直接采纳，两侧重叠且结果不同的区域输出冲突标记
type LineMerger struct {
	// 冲突标记里的名字，为空时使用 ours / theirs
	OursLabel   string
	TheirsLabel string
}

// hunk base[baseStart:baseEnd) 被替换为 other[otherStart:otherEnd)
type hunk struct {
	baseStart, baseEnd   int
	otherStart, otherEnd int
	side                 int
}

const (
	sideOurs = iota
	sideTheirs
)

func (m LineMerger) Merge(base, ours, theirs []byte) ([]byte, bool) {
	switch {
	case bytes.Equal(ours, theirs):
		return ours, true
	case bytes.Equal(base, ours):
		return theirs, true
	case bytes.Equal(base, theirs):
		return ours, true
	}

	b, o, t := splitLines(string(base)), splitLines(string(ours)), splitLines(string(theirs))
	hunks := append(diffHunks(string(base), string(ours), sideOurs), diffHunks(string(base), string(theirs), sideTheirs)...)
	sort.SliceStable(hunks, func(i, j int) bool {
		if hunks[i].baseStart != hunks[j].baseStart {
			return hunks[i].baseStart < hunks[j].baseStart
		}
		return hunks[i].side < hunks[j].side
	})

	var out strings.Builder
	clean := true
	pos := 0
	for i := 0; i < len(hunks); {
		// 合并重叠或相邻的 hunk 成一个区域
		start, end := hunks[i].baseStart, hunks[i].baseEnd
		j := i + 1
		for j < len(hunks) && hunks[j].baseStart <= end {
			end = max(end, hunks[j].baseEnd)
			j++
		}
		region := hunks[i:j]
		i = j

		writeLines(&out, b[pos:start])
		pos = end

		oursPart, oursTouched := sideContent(region, sideOurs, b, o, start, end)
		theirsPart, theirsTouched := sideContent(region, sideTheirs, b, t, start, end)
		switch {
		case !theirsTouched:
			writeLines(&out, oursPart)
		case !oursTouched:
			writeLines(&out, theirsPart)
		case equalLines(oursPart, theirsPart):
			writeLines(&out, oursPart)
		default:
			clean = false
			m.writeConflict(&out, oursPart, theirsPart)
		}
	}
	writeLines(&out, b[pos:])
	return []byte(out.String()), clean
}

func (m LineMerger) writeConflict(out *strings.Builder, ours, theirs []string) {
	oursLabel, theirsLabel := MarkerOurs, MarkerTheirs
	if m.OursLabel != "" {
		oursLabel = "<<<<<<< " + m.OursLabel
	}
	if m.TheirsLabel != "" {
		theirsLabel = ">>>>>>> " + m.TheirsLabel
	}
	ensureNewline(out)
	out.WriteString(oursLabel + "\n")
	writeLines(out, ours)
	ensureNewline(out)
	out.WriteString(MarkerSep + "\n")
	writeLines(out, theirs)
	ensureNewline(out)
	out.WriteString(theirsLabel + "\n")
}

// sideContent 该侧在 base[start:end) 区域内的内容
func sideContent(region []hunk, side int, base, other []string, start, end int) ([]string, bool) {
	var first, last *hunk
	for k := range region {
		if region[k].side != side {
			continue
		}
		if first == nil {
			first = &region[k]
		}
		last = &region[k]
	}
	if first == nil {
		return base[start:end], false
	}
	from := first.otherStart - (first.baseStart - start)
	to := last.otherEnd + (end - last.baseEnd)
	return other[from:to], true
}

// diffHunks 用 diffmatchpatch 的行模式求差异，再按行号还原成 hunk
func diffHunks(base, other string, side int) []hunk {
	dmp := diffmatchpatch.New()
	r1, r2, lines := dmp.DiffLinesToRunes(base, other)
	diffs := dmp.DiffCharsToLines(dmp.DiffMainRunes(r1, r2, false), lines)

	var (
		out    []hunk
		cur    *hunk
		bi, oi int
	)
	flush := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
	}
	open := func() {
		if cur == nil {
			cur = &hunk{baseStart: bi, baseEnd: bi, otherStart: oi, otherEnd: oi, side: side}
		}
	}
	for _, d := range diffs {
		n := len(splitLines(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			bi += n
			oi += n
		case diffmatchpatch.DiffDelete:
			open()
			bi += n
			cur.baseEnd = bi
		case diffmatchpatch.DiffInsert:
			open()
			oi += n
			cur.otherEnd = oi
		}
	}
	flush()
	return out
}

// splitLines 保留行尾的 \n
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(out *strings.Builder, lines []string) {
	for _, l := range lines {
		out.WriteString(l)
	}
}

func ensureNewline(out *strings.Builder) {
	if s := out.String(); s != "" && !strings.HasSuffix(s, "\n") {
		out.WriteByte('\n')
	}
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Disabled 不做内容合并，两侧都改过的文件一律冲突
type Disabled struct{}

func (Disabled) Merge(base, ours, theirs []byte) ([]byte, bool) {
	if bytes.Equal(ours, theirs) {
		return ours, true
	}
	return nil, false
}
