package domain

import (
	"sort"
	"time"
)

// RunState 是一次运行的累加器，由 run 包显式创建并逐级传递（不存在全局状态）。
//
// 约束：
// - 所有列表只追加，不删除（本次运行的审计日志）
// - 每个条目只通过 RecordItem 落账一次，因此同一路径不会同时出现在 NotFound 与 Failed
// - 单线程使用，不加锁
type RunState struct {
	NotFound   []string
	Failed     []string
	Success    int
	Extensions map[string]struct{}

	Renamed   []Rename
	Manifests []ManifestResult
	Items     []ItemResult

	Aborted bool
}

func NewRunState() *RunState {
	return &RunState{Extensions: map[string]struct{}{}}
}

// ObserveExtension 记录一个出现过的扩展名（仅诊断用途）。
func (s *RunState) ObserveExtension(ext string) {
	if s.Extensions == nil {
		s.Extensions = map[string]struct{}{}
	}
	s.Extensions[ext] = struct{}{}
}

// RecordItem 按条目终态更新计数与列表。
func (s *RunState) RecordItem(it ItemResult) {
	switch it.Status {
	case StatusWritten:
		s.Success++
	case StatusNotFound:
		s.NotFound = append(s.NotFound, it.Path)
	case StatusFailed:
		s.Failed = append(s.Failed, it.Path)
	}
	s.Items = append(s.Items, it)
}

func (s *RunState) RecordManifest(m ManifestResult) {
	s.Manifests = append(s.Manifests, m)
}

func (s *RunState) RecordRename(from, to string) {
	s.Renamed = append(s.Renamed, Rename{From: from, To: to})
}

// SortedExtensions 返回已观察到的扩展名（字典序）。
func (s *RunState) SortedExtensions() []string {
	out := make([]string, 0, len(s.Extensions))
	for ext := range s.Extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Report 把当前状态转换为对外的 RunReport（已 Finalize）。
func (s *RunState) Report(runID, root string, dryRun, backup bool, started, finished time.Time) RunReport {
	rr := RunReport{
		RunID:      runID,
		Path:       root,
		DryRun:     dryRun,
		Backup:     backup,
		StartedAt:  started,
		FinishedAt: finished,
		Aborted:    s.Aborted,
		Extensions: s.SortedExtensions(),
		NotFound:   append([]string(nil), s.NotFound...),
		Failed:     append([]string(nil), s.Failed...),
		Renamed:    append([]Rename(nil), s.Renamed...),
		Manifests:  append([]ManifestResult(nil), s.Manifests...),
		Items:      append([]ItemResult(nil), s.Items...),
	}
	rr.Finalize()
	return rr
}
