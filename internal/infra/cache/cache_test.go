package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_ReadWrite(t *testing.T) {
	root := t.TempDir()
	s := New(root, false, time.Hour)

	require.NoError(t, s.Write(KindDetails, "tt0133093", []byte(`{"id":603}`)))
	b, ok, err := s.Read(KindDetails, "tt0133093")
	require.NoError(t, err)
	require.True(t, ok, "期望命中缓存")
	assert.Equal(t, `{"id":603}`, string(b))

	path, _ := s.Path(KindDetails, "tt0133093")
	assert.Equal(t, filepath.Join(root, "tmdb-data", "tt0133093.json"), path)
}

func TestStore_SummaryKeyIsHashed(t *testing.T) {
	s := New(t.TempDir(), false, 0)

	title := "../../etc/passwd & Friends"
	require.NoError(t, s.Write(KindSummary, title, []byte(`{}`)))
	path, err := s.Path(KindSummary, title)
	require.NoError(t, err)
	assert.NotContains(t, filepath.Base(path), "..", "标题不应影响目录结构")
	assert.Equal(t, filepath.Join(s.Root, "movie-data"), filepath.Dir(path), "标题不应影响目录结构")
	_, ok, _ := s.Read(KindSummary, title)
	assert.True(t, ok, "期望命中缓存")
}

func TestStore_RejectsBadIMDbID(t *testing.T) {
	s := New(t.TempDir(), false, 0)
	assert.Error(t, s.Write(KindDetails, "../x", []byte(`{}`)))
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	s := New(t.TempDir(), true, 0)
	err := s.Write(KindDetails, "tt0133093", []byte(`{}`))
	require.ErrorIs(t, err, ErrReadOnly)
	path, _ := s.Path(KindDetails, "tt0133093")
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "期望文件不存在，但 Stat err=%v", err)
}

func TestStore_Expired(t *testing.T) {
	s := New(t.TempDir(), false, time.Minute)
	require.NoError(t, s.Write(KindDetails, "tt0133093", []byte(`{}`)))
	s.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, ok, _ := s.Read(KindDetails, "tt0133093")
	assert.False(t, ok, "过期条目不应命中")
}

func TestStore_DisabledIsNoop(t *testing.T) {
	s := New("", false, 0)
	assert.False(t, s.Enabled(), "Root 为空时应禁用")
	assert.NoError(t, s.Write(KindDetails, "tt0133093", []byte(`{}`)), "禁用时写入应为 no-op")
	_, ok, err := s.Read(KindDetails, "tt0133093")
	assert.NoError(t, err)
	assert.False(t, ok, "禁用时读取应 miss")
}
