package resolve

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrNotFound 是 NotFoundError 的哨兵值，便于 errors.Is 判断。
var ErrNotFound = errors.New("文件不存在")

// NotFoundError 表示 manifest 声明的文件在磁盘上不存在（非致命，记入 RunState.NotFound）。
type NotFoundError struct {
	URI  string
	Path string // 期望路径（未做 .png 回退）
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("文件不存在：%q（uri=%q）", e.Path, e.URI)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Result 是一次成功解析的结果。
type Result struct {
	Path        string
	PNGFallback bool // 磁盘上只有同名 .png
	Repaired    bool // 原 URI 是乱码，修复后命中
}

// 通过可替换的函数指针，让测试能模拟权限错误等 stat 失败。
var statFunc = os.Stat

// Resolver 把 manifest 内的相对 URI 映射到归档根目录下的真实文件。
type Resolver struct {
	Root string
}

func New(root string) Resolver {
	return Resolver{Root: filepath.Clean(root)}
}

// Resolve 按顺序尝试：原路径 -> 原路径的 .png 变体 -> 乱码修复后的路径 -> 其 .png 变体。
// 全部不存在时返回 *NotFoundError（Path 为原路径）。
func (r Resolver) Resolve(uri string) (Result, error) {
	want, ok := Join(r.Root, uri)
	if !ok {
		return Result{}, &NotFoundError{URI: uri, Path: want}
	}
	if res, ok := statFile(want); ok {
		return res, nil
	}

	if fixed, changed := RepairMojibake(uri); changed {
		if p, ok := Join(r.Root, fixed); ok {
			if res, ok := statFile(p); ok {
				res.Repaired = true
				return res, nil
			}
		}
	}
	return Result{}, &NotFoundError{URI: uri, Path: want}
}

func statFile(p string) (Result, bool) {
	if isRegular(p) {
		return Result{Path: p}, true
	}
	if alt := PNGVariant(p); alt != p && isRegular(alt) {
		return Result{Path: alt, PNGFallback: true}, true
	}
	return Result{}, false
}

// Join 去掉 uri 的第一段（manifest 自身所在位置的标记，不对应归档根下的真实目录），
// 再把剩余部分拼到 root 下。只有一段时原样拼接。
// 结果逃逸出 root（例如 uri 含 ".."）时 ok=false。
func Join(root, uri string) (string, bool) {
	u := strings.TrimLeft(strings.ReplaceAll(uri, `\`, "/"), "/")
	parts := strings.Split(path.Clean(u), "/")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	p := filepath.Join(root, filepath.FromSlash(strings.Join(parts, "/")))

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return p, false
	}
	return p, true
}

// PNGVariant 返回把扩展名替换为 .png 后的路径。
func PNGVariant(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p)) + ".png"
}

// RepairMojibake 修复“UTF-8 字节被当作 Latin-1 码点写出”的字符串。
// 只有全部字符都落在 U+0000..U+00FF、且还原后的字节是合法 UTF-8 时才认为修复成功。
func RepairMojibake(s string) (string, bool) {
	high := false
	for _, r := range s {
		if r > 0xFF {
			return s, false
		}
		if r >= 0x80 {
			high = true
		}
	}
	if !high {
		return s, false
	}
	b, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(b) || b == s {
		return s, false
	}
	return b, true
}

func isRegular(p string) bool {
	fi, err := statFunc(p)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}
