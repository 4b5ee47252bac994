package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusWritten  = "written"
	StatusPlanned  = "planned"
	StatusNotFound = "not_found"
	StatusFailed   = "failed"
)

const (
	ManifestProcessed = "processed"
	ManifestSkipped   = "skipped"
	ManifestInvalid   = "invalid"
)

const (
	ErrCodeNotFound         = "not_found"
	ErrCodeWriteFailed      = "write_failed"
	ErrCodeMislabeled       = "mislabeled_format"
	ErrCodeRenameFailed     = "rename_failed"
	ErrCodeMissingTimestamp = "missing_timestamp"
	ErrCodeInvalidManifest  = "invalid_manifest"
	ErrCodeNotManifest      = "not_manifest"
	ErrCodeIOFailed         = "io_failed"
)

// RunReport 是对外稳定输出（--report 文件 / stdout JSON）的结构。
type RunReport struct {
	RunID  string `json:"run_id" yaml:"run_id"`
	Path   string `json:"path" yaml:"path"`
	DryRun bool   `json:"dry_run" yaml:"dry_run"`
	Backup bool   `json:"backup" yaml:"backup"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	// Aborted 表示 fail-fast 触发，后续 manifest 未处理。
	Aborted bool `json:"aborted" yaml:"aborted"`

	Extensions []string         `json:"extensions" yaml:"extensions"`
	Summary    ReportSummary    `json:"summary" yaml:"summary"`
	NotFound   []string         `json:"not_found" yaml:"not_found"`
	Failed     []string         `json:"failed" yaml:"failed"`
	Renamed    []Rename         `json:"renamed" yaml:"renamed"`
	Manifests  []ManifestResult `json:"manifests" yaml:"manifests"`
	Items      []ItemResult     `json:"items" yaml:"items"`
}

type ReportSummary struct {
	Manifests        int `json:"manifests" yaml:"manifests"`
	SkippedManifests int `json:"skipped_manifests" yaml:"skipped_manifests"`
	InvalidManifests int `json:"invalid_manifests" yaml:"invalid_manifests"`

	Written  int `json:"written" yaml:"written"`
	Planned  int `json:"planned" yaml:"planned"`
	NotFound int `json:"not_found" yaml:"not_found"`
	Failed   int `json:"failed" yaml:"failed"`
	Renamed  int `json:"renamed" yaml:"renamed"`
}

type ManifestResult struct {
	Path   string `json:"path" yaml:"path"`
	Status string `json:"status" yaml:"status"`
	Photos int    `json:"photos" yaml:"photos"`
	Videos int    `json:"videos" yaml:"videos"`

	ErrorCode string `json:"error_code" yaml:"error_code"`
	ErrorMsg  string `json:"error_msg" yaml:"error_msg"`
}

type ItemResult struct {
	Manifest  string    `json:"manifest" yaml:"manifest"`
	Field     string    `json:"field" yaml:"field"`
	URI       string    `json:"uri" yaml:"uri"`
	Kind      MediaKind `json:"kind" yaml:"kind"`
	Path      string    `json:"path" yaml:"path"`
	Timestamp string    `json:"timestamp" yaml:"timestamp"`
	Inherited bool      `json:"inherited" yaml:"inherited"`

	Status    string `json:"status" yaml:"status"`
	ErrorCode string `json:"error_code" yaml:"error_code"`
	ErrorMsg  string `json:"error_msg" yaml:"error_msg"`

	RenamedFrom string `json:"renamed_from,omitempty" yaml:"renamed_from,omitempty"`
	Attempts    int    `json:"attempts" yaml:"attempts"`
}

// Rename 记录一次扩展名修正导致的磁盘重命名（无回滚）。
type Rename struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) nil 切片统一为空切片（JSON 输出 [] 而不是 null）
// 3) summary 由 manifests/items 计算得出
//
// 注意：items 保持处理顺序（manifest 发现顺序 -> 照片先于视频），不重新排序。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Extensions == nil {
		r.Extensions = []string{}
	}
	if r.NotFound == nil {
		r.NotFound = []string{}
	}
	if r.Failed == nil {
		r.Failed = []string{}
	}
	if r.Renamed == nil {
		r.Renamed = []Rename{}
	}
	if r.Manifests == nil {
		r.Manifests = []ManifestResult{}
	}
	if r.Items == nil {
		r.Items = []ItemResult{}
	}

	var s ReportSummary
	for _, m := range r.Manifests {
		s.Manifests++
		switch m.Status {
		case ManifestSkipped:
			s.SkippedManifests++
		case ManifestInvalid:
			s.InvalidManifests++
		}
	}
	for _, it := range r.Items {
		switch it.Status {
		case StatusWritten:
			s.Written++
		case StatusPlanned:
			s.Planned++
		case StatusNotFound:
			s.NotFound++
		case StatusFailed:
			s.Failed++
		}
	}
	s.Renamed = len(r.Renamed)
	r.Summary = s
}

// ExitCode 返回进程退出码：存在 not_found / failed / invalid manifest 或 fail-fast 中止时为 1。
func (r RunReport) ExitCode() int {
	if r.Aborted || len(r.NotFound) > 0 || len(r.Failed) > 0 || r.Summary.InvalidManifests > 0 {
		return 1
	}
	return 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
