package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/msgexif/internal/app"
	"github.com/John-Robertt/msgexif/internal/app/planner"
	"github.com/John-Robertt/msgexif/internal/config"
	"github.com/John-Robertt/msgexif/internal/domain"
	"github.com/John-Robertt/msgexif/internal/exiftool"
	"github.com/John-Robertt/msgexif/internal/infra/fsx"
	"github.com/John-Robertt/msgexif/internal/manifest"
	"github.com/John-Robertt/msgexif/internal/resolve"
	"github.com/John-Robertt/msgexif/internal/scan"
)

// MetadataWriter 是元数据写入器（生产环境为 exiftool.Writer）。
type MetadataWriter interface {
	Write(ctx context.Context, req exiftool.Request) error
}

// errAborted 由 fail-fast 触发，用于终止 manifest 扫描。
var errAborted = errors.New("fail-fast：遇到失败，停止处理")

// Execute 执行一次 run，并返回对外稳定的 RunReport。
// 单条失败只记录在 RunState 中，不中断其它条目（fail-fast 除外）。
func Execute(ctx context.Context, eff config.EffectiveConfig, w MetadataWriter) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, w, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, w MetadataWriter, obs Observer) domain.RunReport {
	started := time.Now().UTC()
	runID := uuid.NewString()

	if obs != nil {
		obs.OnStart(eff)
	}

	r := &runner{
		eff:      eff,
		w:        w,
		obs:      obs,
		log:      slog.Default().With("run_id", runID),
		st:       domain.NewRunState(),
		resolver: resolve.New(eff.Path),
	}
	r.log.Info("开始处理", "path", eff.Path, "pattern", eff.Pattern, "dry_run", eff.DryRun, "fail_fast", eff.FailFast)

	err := scan.WalkManifests(eff.Path, eff.Pattern, eff.ExcludeDirs, func(mf domain.ManifestFile) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return r.manifest(ctx, mf)
	})
	switch {
	case err == nil:
	case errors.Is(err, errAborted):
		r.st.Aborted = true
		r.log.Warn("fail-fast 触发，剩余 manifest 未处理")
	default:
		// 扫描失败或 ctx 取消：以一条 invalid manifest 的形式进入报告，保证退出码非 0。
		r.st.Aborted = true
		r.st.RecordManifest(domain.ManifestResult{
			Path:      eff.Path,
			Status:    domain.ManifestInvalid,
			ErrorCode: domain.ErrCodeIOFailed,
			ErrorMsg:  fmt.Sprintf("扫描中断：%v", err),
		})
		r.log.Error("扫描中断", "err", err)
	}

	rr := r.st.Report(runID, eff.Path, eff.DryRun, eff.Backup, started, time.Now().UTC())
	r.log.Info("处理结束",
		"manifests", rr.Summary.Manifests,
		"written", rr.Summary.Written,
		"planned", rr.Summary.Planned,
		"not_found", rr.Summary.NotFound,
		"failed", rr.Summary.Failed,
		"renamed", rr.Summary.Renamed,
		"aborted", rr.Aborted,
	)
	return rr
}

type runner struct {
	eff      config.EffectiveConfig
	w        MetadataWriter
	obs      Observer
	log      *slog.Logger
	st       *domain.RunState
	resolver resolve.Resolver

	manifests int
}

// manifest 处理单个 manifest：parse -> qualify -> normalize -> classify -> 照片 -> 视频。
func (r *runner) manifest(ctx context.Context, mf domain.ManifestFile) error {
	begin := time.Now()
	r.manifests++
	log := r.log.With("manifest", mf.RelPath)

	b, err := os.ReadFile(mf.AbsPath)
	if err != nil {
		return r.invalid(mf, begin, domain.ErrCodeIOFailed, fmt.Errorf("读取失败：%w", err))
	}

	cands, err := manifest.Parse(b)
	if errors.Is(err, manifest.ErrNotManifest) {
		log.Debug("跳过非 manifest JSON", "reason", err)
		r.doneManifest(domain.ManifestResult{
			Path:      mf.RelPath,
			Status:    domain.ManifestSkipped,
			ErrorCode: domain.ErrCodeNotManifest,
			ErrorMsg:  err.Error(),
		}, begin)
		return nil
	}
	if err != nil {
		return r.invalid(mf, begin, domain.ErrCodeInvalidManifest, err)
	}

	entries, err := manifest.Normalize(mf.RelPath, manifest.Qualify(cands, r.st), r.eff.Location)
	if err != nil {
		return r.invalid(mf, begin, domain.ErrCodeMissingTimestamp, err)
	}
	for _, e := range entries {
		if e.Inherited {
			log.Warn("条目缺少 creation_timestamp，使用消息的 timestamp_ms", "uri", e.URI, "timestamp", e.Timestamp)
		}
	}

	photos, videos := app.Classify(entries)
	res := domain.ManifestResult{
		Path:   mf.RelPath,
		Status: domain.ManifestProcessed,
		Photos: len(photos),
		Videos: len(videos),
	}
	log.Debug("manifest 已解析", "candidates", len(cands), "photos", len(photos), "videos", len(videos))

	for _, p := range planner.Queue(photos, videos) {
		if err := ctx.Err(); err != nil {
			r.doneManifest(res, begin)
			return err
		}
		itemBegin := time.Now()
		it := r.item(ctx, p, log)
		r.st.RecordItem(it)
		if r.obs != nil {
			r.obs.OnItemDone(it, time.Since(itemBegin))
		}
		if it.Status == domain.StatusFailed && r.eff.FailFast {
			r.doneManifest(res, begin)
			return errAborted
		}
	}

	r.doneManifest(res, begin)
	return nil
}

// invalid 把整个 manifest 记为 invalid（其条目一律不写入）。
func (r *runner) invalid(mf domain.ManifestFile, begin time.Time, code string, err error) error {
	r.log.Error("manifest 无效", "manifest", mf.RelPath, "code", code, "err", err)
	r.doneManifest(domain.ManifestResult{
		Path:      mf.RelPath,
		Status:    domain.ManifestInvalid,
		ErrorCode: code,
		ErrorMsg:  err.Error(),
	}, begin)
	if r.eff.FailFast {
		return errAborted
	}
	return nil
}

func (r *runner) doneManifest(res domain.ManifestResult, begin time.Time) {
	r.st.RecordManifest(res)
	if r.obs != nil {
		r.obs.OnManifestDone(r.manifests, res, time.Since(begin))
	}
}

// item 把单个条目推进到终态：NotFound / Planned / Written / Failed。
//
// 扩展名错配时：重命名为正确扩展名，然后只重试一次；第二次失败即 Failed。
func (r *runner) item(ctx context.Context, p planner.Pending, log *slog.Logger) domain.ItemResult {
	it := domain.ItemResult{
		Manifest:  p.Entry.Manifest,
		Field:     p.Entry.Field,
		URI:       p.Entry.URI,
		Kind:      p.Kind,
		Timestamp: p.Entry.Timestamp,
		Inherited: p.Entry.Inherited,
	}

	plan, err := planner.Resolve(r.resolver, p)
	it.Path = plan.Path
	if err != nil {
		log.Warn("文件不存在", "uri", p.Entry.URI, "path", plan.Path)
		it.Status = domain.StatusNotFound
		it.ErrorCode = domain.ErrCodeNotFound
		it.ErrorMsg = err.Error()
		return it
	}
	if plan.PNGFallback {
		log.Info("manifest 扩展名与磁盘不一致，改用 .png", "uri", p.Entry.URI, "path", plan.Path)
	}
	if plan.Repaired {
		log.Info("URI 经乱码修复后命中", "uri", p.Entry.URI, "path", plan.Path)
	}

	if r.eff.DryRun {
		it.Status = domain.StatusPlanned
		return it
	}

	req := exiftool.Request{
		Path:      plan.Path,
		Timestamp: p.Entry.Timestamp,
		Kind:      p.Kind,
		Backup:    r.eff.Backup,
	}
	it.Attempts = 1
	err = r.w.Write(ctx, req)
	if err == nil {
		it.Status = domain.StatusWritten
		return it
	}

	ext, ok := exiftool.Mislabeled(err)
	if !ok {
		code := domain.ErrCodeWriteFailed
		var we *exiftool.WriteError
		if errors.As(err, &we) && we.Format != "" {
			// 诊断出了真实格式，但没有可用的扩展名映射。
			code = domain.ErrCodeMislabeled
		}
		return r.failed(it, code, err, log)
	}

	corrected := exiftool.CorrectedPath(plan.Path, ext)
	fixed := p.Entry.WithExtension(ext)
	log.Warn("文件真实格式与扩展名不符，重命名后重试", "from", plan.Path, "to", corrected, "uri", fixed.URI)
	if err := fsx.RenameNoOverwrite(plan.Path, corrected); err != nil {
		return r.failed(it, domain.ErrCodeRenameFailed, err, log)
	}
	r.st.RecordRename(plan.Path, corrected)
	it.RenamedFrom = plan.Path
	it.Path = corrected
	it.URI = fixed.URI

	req.Path = corrected
	it.Attempts = 2
	if err := r.w.Write(ctx, req); err != nil {
		return r.failed(it, domain.ErrCodeWriteFailed, err, log)
	}
	it.Status = domain.StatusWritten
	return it
}

func (r *runner) failed(it domain.ItemResult, code string, err error, log *slog.Logger) domain.ItemResult {
	log.Error("写入失败", "path", it.Path, "code", code, "attempts", it.Attempts, "err", err)
	it.Status = domain.StatusFailed
	it.ErrorCode = code
	it.ErrorMsg = err.Error()
	return it
}
