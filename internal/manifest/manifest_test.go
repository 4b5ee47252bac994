package manifest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/msgexif/internal/domain"
	"github.com/John-Robertt/msgexif/internal/timestamp"
)

const sampleManifest = `{
  "participants": [{"name": "A"}, {"name": "B"}],
  "messages": [
    {
      "sender_name": "A",
      "timestamp_ms": 1609459200000,
      "photos": [
        {"uri": "messages/inbox/ab/photos/1.jpg", "creation_timestamp": 1609459100},
        {"uri": "messages/inbox/ab/photos/2.png"},
        "not-a-record"
      ],
      "videos": [
        {"uri": "messages/inbox/ab/videos/3.mp4", "creation_timestamp": 1609459000}
      ]
    },
    {
      "sender_name": "B",
      "timestamp_ms": "1609459300000",
      "gifs": [{"uri": "https://media.example/x.gif"}],
      "files": [{"uri": "messages/inbox/ab/files/doc.pdf", "creation_timestamp": 1609459300}],
      "share": {"link": "https://example.com"}
    },
    "garbage"
  ],
  "image": {"uri": "messages/inbox/ab/photos/thread.jpg", "creation_timestamp": 1600000000}
}`

func TestParse_TaggedUnionOrder(t *testing.T) {
	cands, err := Parse([]byte(sampleManifest))
	require.NoError(t, err)

	got := make([]string, 0, len(cands))
	for _, c := range cands {
		got = append(got, c.Field+":"+c.URI)
	}
	assert.Equal(t, []string{
		"photos:messages/inbox/ab/photos/1.jpg",
		"photos:messages/inbox/ab/photos/2.png",
		"videos:messages/inbox/ab/videos/3.mp4",
		"gifs:https://media.example/x.gif",
		"files:messages/inbox/ab/files/doc.pdf",
		"image:messages/inbox/ab/photos/thread.jpg",
	}, got)

	assert.Equal(t, "1609459200000", cands[1].Fallback)
	assert.Equal(t, "", cands[1].Own)
	assert.Equal(t, "", cands[5].Fallback, "image 记录没有 fallback")
}

func TestParse_NotManifest(t *testing.T) {
	for _, doc := range []string{
		`{"autofill_information": {}}`,
		`[1, 2, 3]`,
		`{"messages": "nope"}`,
	} {
		_, err := Parse([]byte(doc))
		assert.ErrorIs(t, err, ErrNotManifest, doc)
	}
}

func TestParse_LenientOptionalFields(t *testing.T) {
	// 只有 messages/image 决定是否为 manifest；其它字段的怪异取值不应让整个文件被跳过。
	for _, doc := range []string{
		`{"messages":[{"timestamp_ms":1600000000000,"photos":[{"uri":"m/p.jpg"}]}],"image":null}`,
		`{"messages":[{"timestamp_ms":1600000000000,"photos":[{"uri":"m/p.jpg"}]}],"image":"x"}`,
		`{"messages":[{"timestamp_ms":true,"photos":[{"uri":"m/p.jpg","creation_timestamp":1600000000}]}]}`,
	} {
		cands, err := Parse([]byte(doc))
		require.NoError(t, err, doc)
		require.Len(t, cands, 1, doc)
		assert.Equal(t, "m/p.jpg", cands[0].URI)
	}

	// image 合法而 messages 不是数组：按 image manifest 处理。
	cands, err := Parse([]byte(`{"messages":"nope","image":{"uri":"m/t.jpg","creation_timestamp":1600000000}}`))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, FieldImage, cands[0].Field)
}

func TestNormalize_BadFallbackOnlyFailsWhenUsed(t *testing.T) {
	cands, err := Parse([]byte(`{"messages":[{"timestamp_ms":true,"photos":[{"uri":"m/p.jpg"}]}]}`))
	require.NoError(t, err)
	_, err = Normalize("m.json", cands, time.UTC)
	assert.ErrorIs(t, err, timestamp.ErrInvalid)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"messages": [`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestParse_ImageOnly(t *testing.T) {
	cands, err := Parse([]byte(`{"image": {"uri": "m1/photos/a.jpg", "creation_timestamp": 1609459200}}`))
	require.NoError(t, err)
	require.Len(t, cands, 1)
	assert.Equal(t, FieldImage, cands[0].Field)
	assert.True(t, cands[0].HasURI)
}

func TestQualify_DropsRemoteAndMissingURI(t *testing.T) {
	st := domain.NewRunState()
	cands := []Candidate{
		{Field: FieldPhotos, URI: "m1/a.jpg", HasURI: true},
		{Field: FieldPhotos, URI: "https://cdn.example/b.jpg", HasURI: true},
		{Field: FieldVideos, URI: "HTTP://cdn.example/c.mp4", HasURI: true},
		{Field: FieldGifs},
		{Field: FieldFiles, URI: "  ", HasURI: true},
		{Field: FieldFiles, URI: "m1/README", HasURI: true},
		{Field: FieldVideos, URI: "m1/d.mp4", HasURI: true},
	}

	got := Qualify(cands, st)
	require.Len(t, got, 3)
	assert.Equal(t, "m1/a.jpg", got[0].URI)
	assert.Equal(t, "m1/README", got[1].URI)
	assert.Equal(t, "m1/d.mp4", got[2].URI)

	// 远程条目的扩展名不计入。
	assert.Equal(t, []string{"jpg", "mp4"}, st.SortedExtensions())
}

func TestNormalize_FallbackAndMissing(t *testing.T) {
	cands := []Candidate{
		{Field: FieldPhotos, URI: "m1/a.jpg", HasURI: true, Own: "1609459200"},
		{Field: FieldPhotos, URI: "m1/b.jpg", HasURI: true, Fallback: "1609459200000"},
	}
	entries, err := Normalize("m1/message_1.json", cands, time.UTC)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Inherited)
	assert.True(t, entries[1].Inherited)
	assert.Equal(t, entries[0].Timestamp, entries[1].Timestamp)
	assert.Equal(t, "m1/message_1.json", entries[1].Manifest)

	_, err = Normalize("m1/message_1.json", []Candidate{{URI: "m1/c.jpg", HasURI: true}}, time.UTC)
	var te *TimestampError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "m1/c.jpg", te.URI)
	assert.ErrorIs(t, err, timestamp.ErrMissing)
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("https://x/y.jpg"))
	assert.True(t, IsRemote("//cdn/y.jpg"))
	assert.False(t, IsRemote("messages/http/y.jpg"))
}
