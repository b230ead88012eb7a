package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidassist/docpipe/internal/common"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", "v")

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("k", "v")

	now = now.Add(2 * time.Minute)
	_, ok := c.Get("k")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Keys)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheSweepExpired(t *testing.T) {
	c := NewCache(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Set("old", "1")
	now = now.Add(30 * time.Second)
	c.Set("fresh", "2")
	now = now.Add(45 * time.Second) // "old" past TTL, "fresh" not

	assert.Equal(t, 1, c.SweepExpired())
	_, ok := c.Get("fresh")
	assert.True(t, ok)
}

func TestCacheInvalidate(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", "v")
	c.Invalidate("k")
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestGetTemplateReadThrough(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.md"), []byte("## Report"), 0o644))

	s := NewService(dir, time.Minute, nil)

	content, err := s.GetTemplate("report.md")
	require.NoError(t, err)
	assert.Equal(t, "## Report", content)

	// Second read must come from cache: delete the backing file first.
	require.NoError(t, os.Remove(filepath.Join(dir, "report.md")))
	content, err = s.GetTemplate("report.md")
	require.NoError(t, err)
	assert.Equal(t, "## Report", content)
	assert.Equal(t, uint64(1), s.CacheStats().Hits)

	// Invalidation forces a disk read, which now fails.
	s.Invalidate("report.md")
	_, err = s.GetTemplate("report.md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTemplate))
}

func TestGetTemplateMissingIsTemplateFailure(t *testing.T) {
	s := NewService(t.TempDir(), time.Minute, nil)

	_, err := s.GetTemplate("nope.md")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTemplate))
}

func TestGetTemplateRejectsTraversal(t *testing.T) {
	s := NewService(t.TempDir(), time.Minute, nil)

	_, err := s.GetTemplate("../secrets.txt")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTemplate))
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	s := NewService(dir, time.Minute, nil)
	names, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.md", "b.md"}, names)
}
