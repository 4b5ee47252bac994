package config

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/John-Robertt/msgexif/internal/scan"
)

const (
	// ErrCodeNotFound 表示未给出 messages 目录且 cwd 下没有 msgexif 配置文件。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingPath 表示配置文件（与环境变量）都没有提供 path。
	ErrCodeMissingPath = "config_missing_path"
	// ErrCodeBadPath 表示 path 不存在或不是目录。
	ErrCodeBadPath = "path_invalid"
	// ErrCodeToolNotFound 表示 exiftool 无法在 PATH 中解析。
	ErrCodeToolNotFound = "tool_not_found"
)

const (
	// ConfigName 是配置文件名（不含扩展名）；支持 json/yaml/yml/toml。
	ConfigName = "msgexif"
	// EnvPrefix 是环境变量前缀，例如 MSGEXIF_FAIL_FAST=true。
	EnvPrefix = "MSGEXIF"
	// DefaultTool 是 exiftool 的默认命令名。
	DefaultTool = "exiftool"
)

// CLIArgs 保留“是否显式指定”的信息，使 --backup=false 能覆盖 config.backup=true。
type CLIArgs struct {
	Path string

	Exiftool    string
	ExiftoolSet bool

	Backup    bool
	BackupSet bool

	FailFast    bool
	FailFastSet bool

	DryRun    bool
	DryRunSet bool

	Pattern    string
	PatternSet bool

	Timezone    string
	TimezoneSet bool

	Report    string
	ReportSet bool
}

// EffectiveConfig 是合并并规范化后的最终配置。
type EffectiveConfig struct {
	Path     string
	Exiftool string

	Backup   bool
	FailFast bool
	DryRun   bool

	Pattern     string
	ExcludeDirs []string

	Timezone string
	Location *time.Location

	// Report 为空表示不落盘。
	Report string

	// ConfigFile 是实际读取的配置文件（未读取时为空）。
	ConfigFile string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：在 %q 下未找到配置文件 %s.{json,yaml,yml,toml}", e.Code, e.Path, ConfigName)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeBadPath:
		return fmt.Sprintf("%s：messages 目录 %q 不可用：%v", e.Code, e.Path, e.Err)
	case ErrCodeToolNotFound:
		return fmt.Sprintf("%s：找不到 exiftool %q：%v", e.Code, e.Path, e.Err)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// 测试可替换，避免依赖宿主机是否安装 exiftool。
var lookPath = exec.LookPath

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 path：尝试读取 <path>/msgexif.*（可选）
// 2) CLI 未提供 path：读取 <cwd>/msgexif.*；文件与 MSGEXIF_PATH 都缺失时报 config_not_found
//
// 覆盖优先级：CLI > 环境变量（MSGEXIF_*）> 配置文件 > 默认值。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	searchDir := cwdAbs
	if strings.TrimSpace(cli.Path) != "" {
		searchDir = absCleanFrom(cwdAbs, cli.Path)
	}

	v := newViper(searchDir)
	found, err := readConfig(v)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: searchDir, Err: err}
	}
	cfgPath := v.ConfigFileUsed()

	var root string
	switch {
	case strings.TrimSpace(cli.Path) != "":
		root = searchDir
	case strings.TrimSpace(v.GetString("path")) != "":
		// 配置文件里的相对 path 以配置文件所在目录为基准；环境变量以 cwd 为基准。
		base := cwdAbs
		if found && v.InConfig("path") && os.Getenv(EnvPrefix+"_PATH") == "" {
			base = filepath.Dir(cfgPath)
		}
		root = absCleanFrom(base, v.GetString("path"))
	case !found:
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cwdAbs, Err: os.ErrNotExist}
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	return merge(cwdAbs, root, cli, v, cfgPath)
}

func newViper(dir string) *viper.Viper {
	v := viper.New()

	v.SetDefault("exiftool", DefaultTool)
	v.SetDefault("backup", false)
	v.SetDefault("fail_fast", false)
	v.SetDefault("dry_run", false)
	v.SetDefault("pattern", scan.DefaultPattern)
	v.SetDefault("exclude_dirs", []string{})
	v.SetDefault("timezone", "")
	v.SetDefault("report", "")

	v.SetConfigName(ConfigName)
	v.AddConfigPath(dir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// path 没有默认值，单独绑定 MSGEXIF_PATH。
	_ = v.BindEnv("path")
	return v
}

// readConfig 读取配置文件；文件不存在不算错误。
func readConfig(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func merge(cwdAbs, root string, cli CLIArgs, v *viper.Viper, cfgPath string) (EffectiveConfig, error) {
	errPath := cfgPath
	if errPath == "" {
		errPath = root
	}

	eff := EffectiveConfig{
		Path:        root,
		Exiftool:    pickString(cli.ExiftoolSet, cli.Exiftool, v.GetString("exiftool")),
		Backup:      pickBool(cli.BackupSet, cli.Backup, v.GetBool("backup")),
		FailFast:    pickBool(cli.FailFastSet, cli.FailFast, v.GetBool("fail_fast")),
		DryRun:      pickBool(cli.DryRunSet, cli.DryRun, v.GetBool("dry_run")),
		Pattern:     pickString(cli.PatternSet, cli.Pattern, v.GetString("pattern")),
		ExcludeDirs: append([]string(nil), v.GetStringSlice("exclude_dirs")...),
		Timezone:    pickString(cli.TimezoneSet, cli.Timezone, v.GetString("timezone")),
		ConfigFile:  cfgPath,
	}

	fi, err := os.Stat(root)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadPath, Path: root, Err: err}
	}
	if !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeBadPath, Path: root, Err: fmt.Errorf("不是目录")}
	}

	if strings.TrimSpace(eff.Exiftool) == "" {
		eff.Exiftool = DefaultTool
	}
	// dry-run 不会调用工具，因此不要求它存在。
	if !eff.DryRun {
		resolved, err := lookPath(eff.Exiftool)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeToolNotFound, Path: eff.Exiftool, Err: err}
		}
		eff.Exiftool = resolved
	}

	if strings.TrimSpace(eff.Pattern) == "" {
		eff.Pattern = scan.DefaultPattern
	}
	if err := scan.ValidatePattern(eff.Pattern); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: errPath, Err: err}
	}

	loc, err := loadLocation(eff.Timezone)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: errPath, Err: fmt.Errorf("timezone 无效：%w", err)}
	}
	eff.Location = loc

	if r := pickString(cli.ReportSet, cli.Report, v.GetString("report")); strings.TrimSpace(r) != "" {
		eff.Report = absCleanFrom(cwdAbs, r)
	}

	return eff, nil
}

func pickString(set bool, cliVal, cfgVal string) string {
	if set {
		return cliVal
	}
	return cfgVal
}

func pickBool(set bool, cliVal, cfgVal bool) bool {
	if set {
		return cliVal
	}
	return cfgVal
}

// loadLocation：空串表示本地时区。
func loadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
