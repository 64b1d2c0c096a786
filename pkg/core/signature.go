package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signature 作者 / 提交者 / 打标签者
// 时间精确到秒，并保留时区偏移
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

type signatureWire struct {
	Name   string `cbor:"n"`
	Email  string `cbor:"e"`
	Unix   int64  `cbor:"ts"`
	Offset int    `cbor:"tz"` // 分钟
}

// NewSignature 把时间截断到秒，并固定到一个只带偏移的时区
func NewSignature(name, email string, when time.Time) Signature {
	_, offset := when.Zone()
	return Signature{Name: name, Email: email, When: normalizeTime(when.Unix(), offset/60)}
}

func normalizeTime(unix int64, offsetMinutes int) time.Time {
	return time.Unix(unix, 0).In(time.FixedZone("", offsetMinutes*60))
}

// Offset 时区偏移 (分钟)
func (s Signature) Offset() int {
	_, offset := s.When.Zone()
	return offset / 60
}

// String git 风格: Name <email> 1700000000 +0800
func (s Signature) String() string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), FormatOffset(s.Offset()))
}

// ParseSignature 解析 String() 的输出
func ParseSignature(s string) (Signature, error) {
	lt := strings.IndexByte(s, '<')
	gt := strings.LastIndexByte(s, '>')
	if lt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("bad signature %q", s)
	}
	fields := strings.Fields(s[gt+1:])
	if len(fields) != 2 {
		return Signature{}, fmt.Errorf("bad signature %q", s)
	}
	unix, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Signature{}, fmt.Errorf("bad signature time %q: %w", fields[0], err)
	}
	offset, err := ParseOffset(fields[1])
	if err != nil {
		return Signature{}, err
	}
	return Signature{
		Name:  strings.TrimSpace(s[:lt]),
		Email: s[lt+1 : gt],
		When:  normalizeTime(unix, offset),
	}, nil
}

// FormatOffset 把分钟偏移格式化为 +hhmm
func FormatOffset(minutes int) string {
	sign := '+'
	if minutes < 0 {
		sign = '-'
		minutes = -minutes
	}
	return fmt.Sprintf("%c%02d%02d", sign, minutes/60, minutes%60)
}

// ParseOffset 解析 +hhmm / -hhmm
func ParseOffset(s string) (int, error) {
	if len(s) != 5 || (s[0] != '+' && s[0] != '-') {
		return 0, fmt.Errorf("bad zone offset %q", s)
	}
	hh, err1 := strconv.Atoi(s[1:3])
	mm, err2 := strconv.Atoi(s[3:5])
	if err1 != nil || err2 != nil {
		return 0, fmt.Errorf("bad zone offset %q", s)
	}
	minutes := hh*60 + mm
	if s[0] == '-' {
		minutes = -minutes
	}
	return minutes, nil
}

func (s Signature) MarshalCBOR() ([]byte, error) {
	return em.Marshal(signatureWire{
		Name:   s.Name,
		Email:  s.Email,
		Unix:   s.When.Unix(),
		Offset: s.Offset(),
	})
}

func (s *Signature) UnmarshalCBOR(data []byte) error {
	var w signatureWire
	if err := dm.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Name = w.Name
	s.Email = w.Email
	s.When = normalizeTime(w.Unix, w.Offset)
	return nil
}
