package domain

import (
	"path"
	"strings"
)

// MediaKind 是按扩展名推导出的媒体类型（不落在条目上，每次使用时计算）。
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// MediaEntry 描述 manifest 中的一条媒体引用。
//
// 不变量（实现必须遵守）：
// - 通过过滤的条目 URI 非空且不是远程地址
// - Timestamp 一经规范化不再修改；修正扩展名时返回新值，不原地改写
type MediaEntry struct {
	Manifest string // 所属 manifest 的 RelPath
	Field    string // photos / videos / gifs / audio_files / files / image
	URI      string

	Raw       string // 生效的原始时间戳（十进制位串）
	Inherited bool   // true 表示时间戳来自所在消息的 timestamp_ms
	Timestamp string // "YYYY:MM:DD HH:MM:SS"
}

// Ext 返回 URI 最后一个 '.' 之后的部分（不含点）；没有扩展名时返回空串。
func (e MediaEntry) Ext() string {
	return URIExt(e.URI)
}

// WithExtension 返回把 URI 扩展名替换为 ext（形如 ".png"）后的新条目。
func (e MediaEntry) WithExtension(ext string) MediaEntry {
	e.URI = strings.TrimSuffix(e.URI, path.Ext(e.URI)) + ext
	return e
}

// URIExt 返回 uri 最后一个 '.' 之后的部分；没有 '.' 时返回空串。
func URIExt(uri string) string {
	i := strings.LastIndexByte(uri, '.')
	if i < 0 {
		return ""
	}
	return uri[i+1:]
}
