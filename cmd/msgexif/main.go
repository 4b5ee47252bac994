package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/msgexif/internal/app/run"
	"github.com/John-Robertt/msgexif/internal/config"
	"github.com/John-Robertt/msgexif/internal/domain"
	"github.com/John-Robertt/msgexif/internal/exiftool"
	"github.com/John-Robertt/msgexif/internal/infra/fsx"
)

// version 由构建时 -ldflags 注入。
var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// exitError 让 RunE 携带退出码返回（不再额外打印错误）。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit %d", e.code) }

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		// cobra 的参数/flag 错误。
		fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
		fmt.Fprint(stderr, root.UsageString())
		return exitUsage
	}
	return exitOK
}

// newRootCommand 每次创建新的命令树，测试之间互不共享状态。
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "msgexif",
		Short: "把聊天导出中的媒体时间戳写回文件元数据",
		Long: `msgexif 扫描聊天导出（messages 目录）中的 JSON manifest，
为其引用的照片与视频恢复创建时间，并通过 exiftool 写入文件元数据。`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initializeLogger(cmd, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().String("log-level", "warn", "日志级别（debug|info|warn|error）")
	cmd.PersistentFlags().Bool("log-json", false, "以 JSON 格式输出日志")

	cmd.Version = version
	cmd.SetVersionTemplate("msgexif {{.Version}}\n")

	cmd.AddCommand(newRunCommand(stdout, stderr))
	return cmd
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [messages] [exiftool]",
		Short: "处理 messages 目录下的全部 manifest",
		Long: `处理 messages 目录下的全部 manifest。

未给出 messages 时读取当前目录的 msgexif.{json,yaml,yml,toml}（其中必须有 path）；
环境变量 MSGEXIF_* 覆盖配置文件，命令行参数覆盖环境变量。

退出码：0 全部成功；1 存在未找到/失败/无效 manifest 或 fail-fast 中止；2 参数或配置错误。`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCmd(cmd, args, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.Bool("backup", false, "保留 exiftool 生成的 *_original 备份")
	f.Bool("fail-fast", false, "遇到第一个失败即停止")
	f.Bool("dry-run", false, "只解析与定位文件，不调用 exiftool、不重命名")
	f.String("pattern", "", "manifest 匹配模式（doublestar，默认 **/*.json）")
	f.String("timezone", "", "时间戳格式化所用时区（IANA 名称，默认本地时区）")
	f.String("report", "", "把运行报告写入文件（.yaml/.yml 为 YAML，其它为 JSON）")
	return cmd
}

func runCmd(cmd *cobra.Command, args []string, stdout, stderr io.Writer) error {
	cli := cliArgsFrom(cmd, args)

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(stderr, "读取当前目录失败：%v\n", err)
		return &exitError{code: exitFailure}
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return &exitError{code: exitUsage}
	}
	slog.Debug("生效配置", "path", eff.Path, "exiftool", eff.Exiftool, "config_file", eff.ConfigFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := exiftool.Writer{Tool: eff.Exiftool, Logger: slog.Default()}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var ui *progressUI
	var obs run.Observer
	if interactive {
		ui = newProgressUI(progressW)
		obs = ui
	}

	rr := run.ExecuteWithObserver(ctx, eff, w, obs)
	if ui != nil {
		ui.stop()
	}

	if eff.Report != "" {
		if err := writeReportFile(eff.Report, rr); err != nil {
			fmt.Fprintf(stderr, "写入报告失败：%v\n", err)
			emitReport(stdout, stderr, rr)
			return &exitError{code: exitFailure}
		}
	}

	emitReport(stdout, stderr, rr)
	if interactive && eff.Report != "" {
		fmt.Fprintf(progressW, "report: %s\n", eff.Report)
	}
	if code := rr.ExitCode(); code != exitOK {
		return &exitError{code: code}
	}
	return nil
}

// cliArgsFrom 只把用户显式给出的 flag 标记为 Set，保证 --backup=false 能覆盖配置文件。
func cliArgsFrom(cmd *cobra.Command, args []string) config.CLIArgs {
	f := cmd.Flags()
	var cli config.CLIArgs
	if len(args) > 0 {
		cli.Path = args[0]
	}
	if len(args) > 1 {
		cli.Exiftool = args[1]
		cli.ExiftoolSet = true
	}

	cli.Backup, _ = f.GetBool("backup")
	cli.BackupSet = f.Changed("backup")
	cli.FailFast, _ = f.GetBool("fail-fast")
	cli.FailFastSet = f.Changed("fail-fast")
	cli.DryRun, _ = f.GetBool("dry-run")
	cli.DryRunSet = f.Changed("dry-run")
	cli.Pattern, _ = f.GetString("pattern")
	cli.PatternSet = f.Changed("pattern")
	cli.Timezone, _ = f.GetString("timezone")
	cli.TimezoneSet = f.Changed("timezone")
	cli.Report, _ = f.GetString("report")
	cli.ReportSet = f.Changed("report")
	return cli
}

func initializeLogger(cmd *cobra.Command, stderr io.Writer) error {
	levelStr, _ := cmd.Flags().GetString("log-level")
	asJSON, _ := cmd.Flags().GetBool("log-json")

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(levelStr))); err != nil {
		return fmt.Errorf("--log-level 无效：%q", levelStr)
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if asJSON {
		h = slog.NewJSONHandler(stderr, opts)
	} else {
		h = slog.NewTextHandler(stderr, opts)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTTY(stdout) {
		printSummary(stdout, rr, terminalWidth)
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

// writeReportFile 原子写入报告；扩展名决定格式。
func writeReportFile(path string, rr domain.RunReport) error {
	var (
		b   []byte
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		b, err = yaml.Marshal(rr)
	default:
		b, err = json.MarshalIndent(rr, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 仅重定向了 stderr 而 stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
