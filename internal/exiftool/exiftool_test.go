package exiftool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/John-Robertt/msgexif/internal/domain"
)

func TestArgs_Photo(t *testing.T) {
	got := Args(Request{Path: "/a/1.jpg", Timestamp: "2021:01:01 00:00:00", Kind: domain.KindPhoto})
	assert.Equal(t, []string{
		"-CreationDate=2021:01:01 00:00:00",
		"-DateTimeOriginal=2021:01:01 00:00:00",
		"-overwrite_original",
	}, got)
}

func TestArgs_VideoBackup(t *testing.T) {
	got := Args(Request{Path: "/a/1.mp4", Timestamp: "2021:01:01 00:00:00", Kind: domain.KindVideo, Backup: true})
	assert.Equal(t, []string{
		"-api", "QuickTimeUTC",
		"-CreateDate=2021:01:01 00:00:00",
		"-ModifyDate=2021:01:01 00:00:00",
		"-TrackCreateDate=2021:01:01 00:00:00",
		"-MediaCreateDate=2021:01:01 00:00:00",
		"-CreationDate=2021:01:01 00:00:00",
		"-DateTimeOriginal=2021:01:01 00:00:00",
	}, got)
	assert.NotContains(t, got, "-overwrite_original")
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "PNG", DetectFormat("Error: Not a valid JPG (looks more like a PNG) - /a/1.jpg"))
	assert.Equal(t, "JPEG", DetectFormat("Error: Not a valid PNG (looks more like a JPEG) - /a/1.png"))
	assert.Equal(t, "", DetectFormat("Error: File not found - /a/1.jpg"))
}

func TestMislabeled(t *testing.T) {
	err := &WriteError{Path: "/a/1.jpg", ExitCode: 1, Format: "PNG"}
	ext, ok := Mislabeled(err)
	assert.True(t, ok)
	assert.Equal(t, ".png", ext)

	// 包装后仍可识别。
	ext, ok = Mislabeled(errors.Join(errors.New("ctx"), err))
	assert.True(t, ok)
	assert.Equal(t, ".png", ext)

	// 扩展名已经正确：不再修正。
	_, ok = Mislabeled(&WriteError{Path: "/a/1.png", Format: "PNG"})
	assert.False(t, ok)
	_, ok = Mislabeled(&WriteError{Path: "/a/1.jpeg", Format: "JPEG"})
	assert.False(t, ok)

	// 未知格式 / 普通失败。
	_, ok = Mislabeled(&WriteError{Path: "/a/1.jpg", Format: "TIFF"})
	assert.False(t, ok)
	_, ok = Mislabeled(&WriteError{Path: "/a/1.jpg"})
	assert.False(t, ok)
	_, ok = Mislabeled(errors.New("x"))
	assert.False(t, ok)
}

func TestCorrectedPath(t *testing.T) {
	assert.Equal(t, "/a/b/1.png", CorrectedPath("/a/b/1.jpg", ".png"))
	assert.Equal(t, "/a/b/noext.png", CorrectedPath("/a/b/noext", ".png"))
}

func TestWriteError_Message(t *testing.T) {
	e := &WriteError{Path: "/a/1.jpg", ExitCode: 1, Output: "Error: boom"}
	assert.Contains(t, e.Error(), "exit=1")
	assert.Contains(t, e.Error(), "boom")
}
