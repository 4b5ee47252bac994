package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/John-Robertt/msgexif/internal/app/run"
	"github.com/John-Robertt/msgexif/internal/config"
	"github.com/John-Robertt/msgexif/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// terminalWidth 是摘要与进度行的显示宽度上限（按终端列数计，CJK 字符占两列）。
const terminalWidth = 120

// progressUI 是交互终端下的进度输出。
//
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：单个文件耗时较长（大视频）时也会定期输出一行
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	manifests int
	done      int
	ok        int
	notFound  int
	fail      int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "write"
	modeHint := ""
	if eff.DryRun {
		mode = "dry-run"
		modeHint = " (不调用 exiftool/不重命名)"
	}

	fmt.Fprintf(p.w, "[%s] msgexif run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", fit(eff.Path, terminalWidth-8))
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	fmt.Fprintf(p.w, "  exiftool: %s\n", fit(eff.Exiftool, terminalWidth-12))
	fmt.Fprintf(p.w, "  pattern: %s\n", eff.Pattern)
	fmt.Fprintf(p.w, "  timezone: %s\n", locationName(eff))
	fmt.Fprintf(p.w, "  backup: %s\n", onOff(eff.Backup))
	fmt.Fprintf(p.w, "  fail_fast: %s\n", onOff(eff.FailFast))
	fmt.Fprintf(p.w, "  exclude_dirs: %s\n", formatStringListJSON(eff.ExcludeDirs))
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", fit(eff.ConfigFile, terminalWidth-10))
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	if !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnManifestDone(idx int, res domain.ManifestResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.manifests = idx
	switch res.Status {
	case domain.ManifestSkipped:
		// 非 manifest 的 JSON 很常见，不逐条展示。
		return
	case domain.ManifestInvalid:
		line := fmt.Sprintf("[m%d] %s INVALID %s: %s", idx, res.Path, res.ErrorCode, res.ErrorMsg)
		fmt.Fprintf(p.w, "%s (%s)\n", fit(line, terminalWidth-8), formatShortDuration(dur))
	default:
		line := fmt.Sprintf("[m%d] %s photos=%d videos=%d", idx, res.Path, res.Photos, res.Videos)
		fmt.Fprintf(p.w, "%s (%s)\n", fit(line, terminalWidth-8), formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done++
	var line string
	switch res.Status {
	case domain.StatusWritten:
		p.ok++
		line = fmt.Sprintf("[%d] OK %s %s", p.done, res.Timestamp, res.Path)
		if res.RenamedFrom != "" {
			line += " (renamed)"
		}
	case domain.StatusPlanned:
		p.ok++
		line = fmt.Sprintf("[%d] PLAN %s %s", p.done, res.Timestamp, res.Path)
	case domain.StatusNotFound:
		p.notFound++
		line = fmt.Sprintf("[%d] MISSING %s", p.done, res.Path)
	case domain.StatusFailed:
		p.fail++
		line = fmt.Sprintf("[%d] FAIL %s %s: %s", p.done, res.Path, res.ErrorCode, res.ErrorMsg)
	default:
		line = fmt.Sprintf("[%d] %s %s", p.done, strings.ToUpper(res.Status), res.Path)
	}
	fmt.Fprintf(p.w, "%s (%s)\n", fit(line, terminalWidth-8), formatShortDuration(dur))
	p.lastPrinted = time.Now()
}

// stop 结束 keepalive（在打印最终摘要之前调用）。
func (p *progressUI) stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if time.Since(p.lastPrinted) > threshold {
					fmt.Fprintf(p.w, "进度: manifests=%d items=%d ok=%d missing=%d fail=%d elapsed=%s\n",
						p.manifests, p.done, p.ok, p.notFound, p.fail, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

// printSummary 输出给人看的最终摘要：扩展名、成功数、未找到与失败清单。
func printSummary(w io.Writer, rr domain.RunReport, width int) {
	fmt.Fprintln(w, summaryLine(rr))
	fmt.Fprintf(w, "扩展名: %s\n", fit(strings.Join(rr.Extensions, ", "), width-9))
	if rr.Aborted {
		fmt.Fprintln(w, "已中止：fail-fast 触发或扫描中断，部分 manifest 未处理")
	}

	if len(rr.NotFound) > 0 {
		fmt.Fprintf(w, "未找到 (%d):\n", len(rr.NotFound))
		for _, p := range rr.NotFound {
			fmt.Fprintf(w, "  %s\n", fit(p, width-2))
		}
	}

	failed := 0
	for _, it := range rr.Items {
		if it.Status == domain.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(w, "失败 (%d):\n", failed)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			fmt.Fprintf(w, "  %s\n", fit(fmt.Sprintf("%s %s: %s", it.Path, it.ErrorCode, it.ErrorMsg), width-2))
		}
	}

	for _, m := range rr.Manifests {
		if m.Status != domain.ManifestInvalid {
			continue
		}
		fmt.Fprintf(w, "  %s\n", fit(fmt.Sprintf("manifest %s %s: %s", m.Path, m.ErrorCode, m.ErrorMsg), width-2))
	}
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	return fmt.Sprintf("完成：manifests=%d invalid=%d written=%d planned=%d not_found=%d failed=%d renamed=%d",
		s.Manifests-s.SkippedManifests, s.InvalidManifests, s.Written, s.Planned, s.NotFound, s.Failed, s.Renamed,
	)
}

// fit 按显示宽度截断（CJK 文件名按两列计），超出时以 "..." 结尾。
func fit(s string, width int) string {
	s = strings.TrimSpace(s)
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "...")
}

func locationName(eff config.EffectiveConfig) string {
	if eff.Location == nil {
		return "Local"
	}
	return eff.Location.String()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
