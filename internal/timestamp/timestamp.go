package timestamp

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Layout 是 exiftool 日期字段要求的格式（YYYY:MM:DD HH:MM:SS）。
const Layout = "2006:01:02 15:04:05"

// secondDigits 是秒级 epoch 的十进制位数；更长的值（毫秒/微秒）按前缀截断。
const secondDigits = 10

var (
	// ErrMissing 表示条目自身与所在消息都没有可用时间戳（MissingTimestamp）。
	ErrMissing = errors.New("缺少时间戳")
	// ErrInvalid 表示时间戳无法转换为非负整数。
	ErrInvalid = errors.New("时间戳无效")
)

// Normalize 把 epoch 数值规范化为 exiftool 可接受的本地时间字符串。
//
// 规则：
// - own 非空优先；否则使用 fallback（第二个返回值为 true，调用方应给出 warning）
// - 两者都为空：ErrMissing
// - 只取十进制表示的前 10 位（秒级），因此毫秒与秒输入得到相同结果
// - loc 为 nil 时使用 time.Local
func Normalize(own, fallback string, loc *time.Location) (string, bool, error) {
	raw, inherited := own, false
	if strings.TrimSpace(raw) == "" {
		raw, inherited = fallback, true
	}
	if strings.TrimSpace(raw) == "" {
		return "", false, ErrMissing
	}

	digits, err := Canonical(raw)
	if err != nil {
		return "", inherited, err
	}
	if len(digits) > secondDigits {
		digits = digits[:secondDigits]
	}
	sec, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return "", inherited, fmt.Errorf("%w：%q", ErrInvalid, raw)
	}

	if loc == nil {
		loc = time.Local
	}
	return time.Unix(sec, 0).In(loc).Format(Layout), inherited, nil
}

// Canonical 把 JSON 中的数值文本（整数、浮点、指数或带引号的数字串）转换为
// 不含前导零的十进制整数位串。负数与非数值返回 ErrInvalid。
func Canonical(v string) (string, error) {
	s := strings.TrimSpace(v)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if s == "" {
		return "", fmt.Errorf("%w：%q", ErrInvalid, v)
	}

	if allDigits(s) {
		s = strings.TrimLeft(s, "0")
		if s == "" {
			s = "0"
		}
		return s, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", fmt.Errorf("%w：%q", ErrInvalid, v)
	}
	return strconv.FormatFloat(math.Trunc(f), 'f', 0, 64), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
