package app

import (
	"strings"

	"github.com/John-Robertt/msgexif/internal/domain"
)

// 后缀匹配区分大小写（".JPG" 不算照片）。
var (
	photoExts = []string{".jpg", ".png", ".gif"}
	videoExts = []string{".mp4"}
)

// KindOf 按 URI 后缀判断媒体类型；既不是照片也不是视频时 ok=false。
func KindOf(uri string) (domain.MediaKind, bool) {
	for _, ext := range photoExts {
		if strings.HasSuffix(uri, ext) {
			return domain.KindPhoto, true
		}
	}
	for _, ext := range videoExts {
		if strings.HasSuffix(uri, ext) {
			return domain.KindVideo, true
		}
	}
	return "", false
}

// Classify 把条目稳定地划分为照片与视频两组（保持 manifest 内顺序）。
// 两类都不匹配的条目被丢弃，不报错。
func Classify(entries []domain.MediaEntry) (photos, videos []domain.MediaEntry) {
	photos = make([]domain.MediaEntry, 0, len(entries))
	videos = make([]domain.MediaEntry, 0, 8)
	for _, e := range entries {
		kind, ok := KindOf(e.URI)
		if !ok {
			continue
		}
		switch kind {
		case domain.KindPhoto:
			photos = append(photos, e)
		case domain.KindVideo:
			videos = append(videos, e)
		}
	}
	return photos, videos
}
