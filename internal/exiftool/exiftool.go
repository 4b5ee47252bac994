package exiftool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/msgexif/internal/domain"
)

// 照片与视频都写的两个日期字段。
var baseTags = []string{"CreationDate", "DateTimeOriginal"}

// QuickTime 容器额外暴露的日期字段（仅视频）。
var videoTags = []string{"CreateDate", "ModifyDate", "TrackCreateDate", "MediaCreateDate"}

// formatExt 把 exiftool 诊断中的格式名映射为扩展名；不在表内的格式不做修正。
var formatExt = map[string]string{
	"PNG":  ".png",
	"JPEG": ".jpg",
	"JPG":  ".jpg",
	"GIF":  ".gif",
	"MP4":  ".mp4",
	"MOV":  ".mov",
	"HEIC": ".heic",
	"WEBP": ".webp",
}

var looksLikeRE = regexp.MustCompile(`(?i)looks more like an? ([A-Z0-9]+)`)

// Request 是一次元数据写入请求。
type Request struct {
	Path      string
	Timestamp string // "YYYY:MM:DD HH:MM:SS"
	Kind      domain.MediaKind
	Backup    bool // true：保留 exiftool 默认的 *_original 备份
}

// Args 构造 exiftool 参数（不含目标路径）。
func Args(req Request) []string {
	args := make([]string, 0, 2+len(videoTags)+len(baseTags)+1)
	if req.Kind == domain.KindVideo {
		args = append(args, "-api", "QuickTimeUTC")
		for _, tag := range videoTags {
			args = append(args, "-"+tag+"="+req.Timestamp)
		}
	}
	for _, tag := range baseTags {
		args = append(args, "-"+tag+"="+req.Timestamp)
	}
	if !req.Backup {
		args = append(args, "-overwrite_original")
	}
	return args
}

// WriteError 表示 exiftool 未能写入（非 0 退出或无法启动）。
type WriteError struct {
	Path     string
	ExitCode int    // -1 表示进程未能启动
	Output   string // stdout+stderr
	Format   string // 诊断显示的真实格式（例如 "PNG"）；为空表示不是扩展名错配
	Err      error
}

func (e *WriteError) Error() string {
	msg := strings.TrimSpace(e.Output)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.ExitCode >= 0 {
		return fmt.Sprintf("exiftool 写入 %q 失败（exit=%d）：%s", e.Path, e.ExitCode, msg)
	}
	return fmt.Sprintf("exiftool 写入 %q 失败：%s", e.Path, msg)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Writer 以子进程方式调用 exiftool，每个文件一次。
type Writer struct {
	Tool   string
	Logger *slog.Logger
}

// Write 阻塞直到 exiftool 退出；退出码为 0 视为成功，否则返回 *WriteError。
func (w Writer) Write(ctx context.Context, req Request) error {
	args := append(Args(req), req.Path)
	w.logger().Debug("运行 exiftool", "tool", w.Tool, "args", args)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, w.Tool, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err == nil {
		return nil
	}

	we := &WriteError{
		Path:     req.Path,
		ExitCode: -1,
		Output:   strings.TrimSpace(out.String()),
		Err:      err,
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		we.ExitCode = ee.ExitCode()
	}
	we.Format = DetectFormat(we.Output)
	return we
}

func (w Writer) logger() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

// DetectFormat 从 exiftool 诊断输出中提取“看起来更像”的真实格式（大写）。
func DetectFormat(output string) string {
	m := looksLikeRE.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// Mislabeled 判断 err 是否为扩展名错配（MislabeledFormat），并返回应改成的扩展名。
// 诊断格式未知，或与当前扩展名一致时返回 ok=false（避免无意义的重命名）。
func Mislabeled(err error) (ext string, ok bool) {
	var we *WriteError
	if !errors.As(err, &we) || we.Format == "" {
		return "", false
	}
	ext, ok = formatExt[we.Format]
	if !ok {
		return "", false
	}
	if sameExt(filepath.Ext(we.Path), ext) {
		return "", false
	}
	return ext, true
}

func sameExt(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(s)
		if s == ".jpeg" {
			return ".jpg"
		}
		return s
	}
	return norm(a) == norm(b)
}

// CorrectedPath 返回把 path 的扩展名替换为 ext 后的路径（纯函数，不触碰磁盘）。
func CorrectedPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
