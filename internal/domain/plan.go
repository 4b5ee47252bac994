package domain

// WritePlan 是单个条目解析完成后的写入计划（Pending -> Resolved）。
// 只有 Resolved 的计划会交给 writer；NotFound 直接落到 RunState。
type WritePlan struct {
	Entry MediaEntry
	Kind  MediaKind

	// Path 是解析得到的绝对路径；NotFound 时为期望路径（用于报告）。
	Path string

	Resolved    bool
	PNGFallback bool // manifest 扩展名与磁盘不一致，改用了 .png
	Repaired    bool // URI 经过乱码修复后才命中
}
