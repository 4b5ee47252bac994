package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/John-Robertt/msgexif/internal/domain"
)

// DefaultPattern 匹配归档下任意深度的 JSON manifest。
const DefaultPattern = "**/*.json"

// ErrInvalidPattern 表示 manifest 匹配模式不是合法的 doublestar glob。
var ErrInvalidPattern = errors.New("manifest 匹配模式无效")

// ValidatePattern 校验 pattern；空串视为 DefaultPattern。
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("%w：%q", ErrInvalidPattern, pattern)
	}
	return nil
}

// WalkManifests 惰性扫描 root 下匹配 pattern 的 manifest 文件，按发现顺序逐个回调 fn。
//
// 规则：
// - 发现顺序由目录项字典序决定，对同一文件系统是稳定的
// - excludeDirs：来自配置文件，均视为相对 root 的路径（若是绝对路径，则按绝对路径处理）
// - 被排除的目录整棵跳过（SkipDir），不会被读取
// - fn 返回的错误会终止扫描并原样返回（fail-fast 依赖这一点）
//
// 注意：扫描阶段不读文件内容。
func WalkManifests(root, pattern string, excludeDirs []string, fn func(domain.ManifestFile) error) error {
	root = filepath.Clean(root)
	return walkManifests(os.DirFS(root), root, pattern, excludeDirs, fn)
}

// walkManifests 在 fsys 上遍历；root 只用于拼出 AbsPath 与匹配 excludeDirs。
func walkManifests(fsys fs.FS, root, pattern string, excludeDirs []string, fn func(domain.ManifestFile) error) error {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if err := ValidatePattern(pattern); err != nil {
		return err
	}
	excluded := buildExcluded(root, excludeDirs)

	return fs.WalkDir(fsys, ".", func(rel string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		abs := filepath.Join(root, filepath.FromSlash(rel))

		// 统一的排除判断：目录用 SkipDir，文件则直接跳过。
		if isExcluded(abs, excluded) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		// pattern 已校验，Match 不会返回 ErrBadPattern。
		if ok, _ := doublestar.Match(pattern, rel); !ok {
			return nil
		}
		return fn(domain.ManifestFile{AbsPath: abs, RelPath: rel})
	})
}

// ScanManifests 与 WalkManifests 相同，但一次性收集全部结果。
func ScanManifests(root, pattern string, excludeDirs []string) ([]domain.ManifestFile, error) {
	files := make([]domain.ManifestFile, 0, 64)
	err := WalkManifests(root, pattern, excludeDirs, func(m domain.ManifestFile) error {
		files = append(files, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		// x 是相对路径：相对 root。
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}

	// 排除列表排序后，isExcluded 的行为更可预测（且便于测试）。
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
