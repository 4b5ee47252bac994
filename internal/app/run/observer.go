package run

import (
	"time"

	"github.com/John-Robertt/msgexif/internal/config"
	"github.com/John-Robertt/msgexif/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - 事件在执行 goroutine 上同步触发，实现不应阻塞。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用。
	OnStart(eff config.EffectiveConfig)
	// OnManifestDone 在一个 manifest 处理结束（含 skipped/invalid）时调用；idx 从 1 开始。
	OnManifestDone(idx int, res domain.ManifestResult, dur time.Duration)
	// OnItemDone 在单个条目落账后调用。
	OnItemDone(res domain.ItemResult, dur time.Duration)
}
