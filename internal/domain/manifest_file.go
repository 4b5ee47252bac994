package domain

// ManifestFile 描述一次扫描得到的 manifest 文件（只做 stat，不读内容）。
//
// 不变量：AbsPath 必须是 clean + absolute；RelPath 使用 '/' 分隔。
type ManifestFile struct {
	AbsPath string
	RelPath string
}
