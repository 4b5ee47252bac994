package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/John-Robertt/msgexif/internal/domain"
	"github.com/John-Robertt/msgexif/internal/timestamp"
)

var (
	// ErrNotManifest 表示 JSON 文件合法但不是会话 manifest（跳过，不算失败）。
	ErrNotManifest = errors.New("不是会话 manifest")
	// ErrMalformed 表示文件不是合法 JSON（该 manifest 记为 invalid）。
	ErrMalformed = errors.New("manifest 不是合法 JSON")
)

// FieldImage 是顶层 image 记录对应的来源字段名。
const FieldImage = "image"

// 消息上已知的列表字段（按解析输出顺序）。
const (
	FieldPhotos     = "photos"
	FieldVideos     = "videos"
	FieldGifs       = "gifs"
	FieldAudioFiles = "audio_files"
	FieldFiles      = "files"
)

var remotePrefixes = []string{"http://", "https://", "ftp://", "//"}

// Candidate 是 manifest 中一条未过滤的候选媒体记录。
type Candidate struct {
	Field  string
	URI    string
	HasURI bool

	Own      string // 记录自身的 creation_timestamp（原始文本，可能为空）
	Fallback string // 所在消息的 timestamp_ms（image 记录恒为空）
}

// document 用显式字段描述 manifest 的两种形态（tagged union），而不是反射遍历所有 key。
type document struct {
	Messages json.RawMessage `json:"messages"`
	Image    json.RawMessage `json:"image"`
}

type message struct {
	TimestampMs rawStamp   `json:"timestamp_ms"`
	Photos      recordList `json:"photos"`
	Videos      recordList `json:"videos"`
	Gifs        recordList `json:"gifs"`
	AudioFiles  recordList `json:"audio_files"`
	Files       recordList `json:"files"`
}

func (m message) fields() []struct {
	name string
	list recordList
} {
	return []struct {
		name string
		list recordList
	}{
		{FieldPhotos, m.Photos},
		{FieldVideos, m.Videos},
		{FieldGifs, m.Gifs},
		{FieldAudioFiles, m.AudioFiles},
		{FieldFiles, m.Files},
	}
}

type record struct {
	URI               *string  `json:"uri"`
	CreationTimestamp rawStamp `json:"creation_timestamp"`
}

// rawStamp 保留时间戳的原始 JSON 文本（数字或字符串），交给 timestamp 包统一解释。
type rawStamp string

func (s *rawStamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	*s = rawStamp(b)
	return nil
}

// recordList 只保留数组中的对象元素；非数组或非对象元素被忽略。
type recordList []record

func (l *recordList) UnmarshalJSON(b []byte) error {
	var elems []json.RawMessage
	if err := json.Unmarshal(b, &elems); err != nil {
		*l = nil
		return nil
	}
	out := make(recordList, 0, len(elems))
	for _, e := range elems {
		e = bytes.TrimSpace(e)
		if len(e) == 0 || e[0] != '{' {
			continue
		}
		var r record
		if err := json.Unmarshal(e, &r); err != nil {
			continue
		}
		out = append(out, r)
	}
	*l = out
	return nil
}

// Parse 从一个 manifest 的原始内容中提取候选条目（不区分媒体类型，不做过滤）。
//
// 输出顺序：messages 按出现顺序，消息内按 photos/videos/gifs/audio_files/files；
// 顶层 image 记录排在最后（无 fallback 时间戳）。
func Parse(b []byte) ([]Candidate, error) {
	if !json.Valid(b) {
		return nil, ErrMalformed
	}
	if err := checkShape(b); err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w：%v", ErrMalformed, err)
	}

	// messages 与 image 可以同时出现；不是数组的 messages 视为没有消息。
	var msgs []json.RawMessage
	if m := bytes.TrimSpace(doc.Messages); len(m) > 0 && m[0] == '[' {
		if err := json.Unmarshal(m, &msgs); err != nil {
			return nil, fmt.Errorf("%w：%v", ErrMalformed, err)
		}
	}

	out := make([]Candidate, 0, 16)
	for _, raw := range msgs {
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var m message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		for _, f := range m.fields() {
			for _, r := range f.list {
				out = append(out, r.candidate(f.name, string(m.TimestampMs)))
			}
		}
	}
	if img := bytes.TrimSpace(doc.Image); len(img) > 0 && img[0] == '{' {
		var r record
		if err := json.Unmarshal(img, &r); err == nil {
			out = append(out, r.candidate(FieldImage, ""))
		}
	}
	return out, nil
}

func (r record) candidate(field, fallback string) Candidate {
	c := Candidate{
		Field:    field,
		Own:      string(r.CreationTimestamp),
		Fallback: fallback,
	}
	if r.URI != nil {
		c.URI = *r.URI
		c.HasURI = true
	}
	return c
}

// Qualify 过滤出声明了非空本地 uri 的候选，并把其扩展名记入 st.Extensions。
// 远程地址（http/https 等）引用的是从未导出到本地的媒体，直接丢弃。
func Qualify(cands []Candidate, st *domain.RunState) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !c.HasURI || strings.TrimSpace(c.URI) == "" || IsRemote(c.URI) {
			continue
		}
		if st != nil {
			if ext := domain.URIExt(c.URI); ext != "" {
				st.ObserveExtension(ext)
			}
		}
		out = append(out, c)
	}
	return out
}

// IsRemote 判断 uri 是否指向网络地址。
func IsRemote(uri string) bool {
	low := strings.ToLower(strings.TrimSpace(uri))
	for _, p := range remotePrefixes {
		if strings.HasPrefix(low, p) {
			return true
		}
	}
	return false
}

// TimestampError 表示某个条目无法得到时间戳；整个 manifest 因此作废。
type TimestampError struct {
	URI string
	Err error
}

func (e *TimestampError) Error() string {
	return fmt.Sprintf("条目 %q 的时间戳不可用：%v", e.URI, e.Err)
}

func (e *TimestampError) Unwrap() error { return e.Err }

// Normalize 为每个候选解析时间戳并生成 MediaEntry。
// 任一条目缺少时间戳即返回 *TimestampError（不在本地吞掉）。
func Normalize(manifestRel string, cands []Candidate, loc *time.Location) ([]domain.MediaEntry, error) {
	out := make([]domain.MediaEntry, 0, len(cands))
	for _, c := range cands {
		ts, inherited, err := timestamp.Normalize(c.Own, c.Fallback, loc)
		if err != nil {
			return nil, &TimestampError{URI: c.URI, Err: err}
		}
		raw := c.Own
		if inherited {
			raw = c.Fallback
		}
		raw, _ = timestamp.Canonical(raw)
		out = append(out, domain.MediaEntry{
			Manifest:  manifestRel,
			Field:     c.Field,
			URI:       c.URI,
			Raw:       raw,
			Inherited: inherited,
			Timestamp: ts,
		})
	}
	return out, nil
}
