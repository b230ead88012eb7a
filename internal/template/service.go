package template

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rapidassist/docpipe/internal/common"
)

// Service loads reusable prompt templates from a directory, caching
// parsed content under a TTL.
type Service struct {
	dir    string
	cache  *Cache
	logger *slog.Logger
}

func NewService(dir string, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, cache: NewCache(cacheTTL), logger: logger}
}

// GetTemplate returns the template content by name, reading through the
// cache. A missing or unreadable template is a TemplateFailure, which
// aborts the enclosing request.
func (s *Service) GetTemplate(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", common.TemplateError("invalid template name: "+name, nil)
	}

	cacheKey := "template:" + name
	if content, ok := s.cache.Get(cacheKey); ok {
		s.logger.Debug("template.cache.hit", "name", name)
		return content, nil
	}

	content, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		s.logger.Error("template.read.failed", "name", name, "error", err)
		return "", common.TemplateError("failed to read template: "+name, err)
	}

	s.cache.Set(cacheKey, string(content))
	s.logger.Debug("template.cache.fill", "name", name, "bytes", len(content))
	return string(content), nil
}

// Invalidate drops a template from the cache so the next read hits disk.
func (s *Service) Invalidate(name string) {
	s.cache.Invalidate("template:" + name)
}

// List returns the names of all available templates.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, common.TemplateError("failed to list templates", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// CacheStats exposes cache counters for instrumentation.
func (s *Service) CacheStats() Stats {
	return s.cache.Stats()
}

// StartCacheJanitor starts the periodic expiry sweep.
func (s *Service) StartCacheJanitor() (stop func()) {
	return s.cache.StartJanitor()
}
