package planner

import (
	"errors"

	"github.com/John-Robertt/msgexif/internal/domain"
	"github.com/John-Robertt/msgexif/internal/resolve"
)

// Pending 是尚未解析路径的条目。
type Pending struct {
	Entry domain.MediaEntry
	Kind  domain.MediaKind
}

// Queue 生成一个 manifest 内的处理顺序：照片在前、视频在后，各自保持 manifest 顺序。
func Queue(photos, videos []domain.MediaEntry) []Pending {
	out := make([]Pending, 0, len(photos)+len(videos))
	for _, e := range photos {
		out = append(out, Pending{Entry: e, Kind: domain.KindPhoto})
	}
	for _, e := range videos {
		out = append(out, Pending{Entry: e, Kind: domain.KindVideo})
	}
	return out
}

// Resolve 把 Pending 推进到 Resolved 或 NotFound（只做 stat，不做任何写入/重命名）。
//
// 必须在写入前一刻调用：前一个条目的扩展名修正可能改变磁盘状态。
// NotFound 时返回 Resolved=false 的计划（Path 为期望路径）与 *resolve.NotFoundError。
func Resolve(r resolve.Resolver, p Pending) (domain.WritePlan, error) {
	plan := domain.WritePlan{
		Entry: p.Entry,
		Kind:  p.Kind,
	}

	res, err := r.Resolve(p.Entry.URI)
	if err != nil {
		var nf *resolve.NotFoundError
		if errors.As(err, &nf) {
			plan.Path = nf.Path
		}
		return plan, err
	}

	plan.Path = res.Path
	plan.Resolved = true
	plan.PNGFallback = res.PNGFallback
	plan.Repaired = res.Repaired
	return plan, nil
}
