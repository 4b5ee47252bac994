package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/John-Robertt/msgexif/internal/config"
	"github.com/John-Robertt/msgexif/internal/domain"
)

func TestFit_UsesDisplayWidth(t *testing.T) {
	s := "messages/inbox/张三_123/photos/照片照片照片照片.jpg"
	got := fit(s, 20)
	if runewidth.StringWidth(got) > 20 {
		t.Fatalf("截断后宽度超限：%q (%d)", got, runewidth.StringWidth(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("截断后应以 ... 结尾：%q", got)
	}
	if fit("short", 20) != "short" {
		t.Fatalf("未超宽时不应截断")
	}
}

func TestPrintSummary_ListsNotFoundAndFailed(t *testing.T) {
	rr := domain.RunReport{
		Extensions: []string{"jpg", "mp4"},
		NotFound:   []string{"/root/a.jpg"},
		Failed:     []string{"/root/b.mp4"},
		Manifests:  []domain.ManifestResult{{Path: "inbox/x/message_1.json", Status: domain.ManifestProcessed}},
		Items: []domain.ItemResult{
			{Path: "/root/ok.jpg", Status: domain.StatusWritten},
			{Path: "/root/a.jpg", Status: domain.StatusNotFound, ErrorCode: domain.ErrCodeNotFound},
			{Path: "/root/b.mp4", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeWriteFailed, ErrorMsg: "exit=1"},
		},
	}
	rr.Finalize()

	var buf bytes.Buffer
	printSummary(&buf, rr, terminalWidth)
	out := buf.String()

	for _, want := range []string{"written=1", "not_found=1", "failed=1", "扩展名: jpg, mp4", "/root/a.jpg", "/root/b.mp4 write_failed: exit=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("摘要缺少 %q：\n%s", want, out)
		}
	}
}

func TestProgressUI_Lines(t *testing.T) {
	var buf bytes.Buffer
	ui := newProgressUI(&buf)
	ui.OnStart(config.EffectiveConfig{Path: "/data/messages", DryRun: true, Pattern: "**/*.json"})
	ui.OnItemDone(domain.ItemResult{Path: "/data/messages/inbox/a.jpg", Status: domain.StatusPlanned, Timestamp: "2020:09:13 12:26:40"}, time.Millisecond)
	ui.OnItemDone(domain.ItemResult{Path: "/data/messages/inbox/b.jpg", Status: domain.StatusNotFound}, time.Millisecond)
	ui.OnManifestDone(1, domain.ManifestResult{Path: "inbox/message_1.json", Status: domain.ManifestProcessed, Photos: 2}, time.Second)
	ui.OnManifestDone(2, domain.ManifestResult{Path: "other.json", Status: domain.ManifestSkipped}, time.Second)
	ui.stop()

	out := buf.String()
	for _, want := range []string{"(dry-run)", "[1] PLAN 2020:09:13 12:26:40", "[2] MISSING", "[m1] inbox/message_1.json photos=2 videos=0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("输出缺少 %q：\n%s", want, out)
		}
	}
	if strings.Contains(out, "other.json") {
		t.Fatalf("skipped manifest 不应输出：\n%s", out)
	}
}
