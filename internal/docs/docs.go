// Package docs manages the uploads directory. Every access canonicalizes
// the requested name and verifies it stays under the uploads root; escapes
// are reported as not-found so directory layout never leaks.
package docs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/common"
)

// MaxUploadSize caps a single uploaded document at 10 MB.
const MaxUploadSize = 10 << 20

var allowedExtensions = map[string]struct{}{
	".txt": {}, ".md": {}, ".py": {}, ".js": {}, ".json": {}, ".xml": {},
	".html": {}, ".css": {}, ".java": {}, ".cpp": {}, ".c": {}, ".h": {},
	".ts": {}, ".jsx": {}, ".tsx": {}, ".yaml": {}, ".yml": {}, ".toml": {},
	".ini": {}, ".cfg": {}, ".conf": {}, ".log": {}, ".csv": {},
}

// AllowedExtension reports whether the filename's extension is accepted
// for upload. Only text-like formats are.
func AllowedExtension(filename string) bool {
	_, ok := allowedExtensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// AllowedExtensions lists the accepted extensions, sorted, for error text.
func AllowedExtensions() []string {
	out := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Document is stored-file metadata; Content is set only by Load.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
	Content   string `json:"-"`
}

type Service struct {
	root string
}

func NewService(uploadsDir string) (*Service, error) {
	root, err := filepath.Abs(uploadsDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Service{root: root}, nil
}

// resolve canonicalizes name under the root. Any path that would land
// outside collapses to DOCUMENT_NOT_FOUND.
func (s *Service) resolve(name string) (string, error) {
	p := filepath.Join(s.root, filepath.Clean("/"+name))
	abs, err := filepath.Abs(p)
	if err != nil || !strings.HasPrefix(abs, s.root+string(filepath.Separator)) {
		return "", apierr.NotFound(apierr.CodeDocumentNotFound, "document", name)
	}
	return abs, nil
}

func (s *Service) List() ([]Document, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Document{
			ID:        e.Name(),
			Name:      e.Name(),
			Size:      info.Size(),
			CreatedAt: common.FormatTime(info.ModTime()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// Load reads a stored document including its content.
func (s *Service) Load(name string) (*Document, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, apierr.NotFound(apierr.CodeDocumentNotFound, "document", name)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.NotFound(apierr.CodeDocumentNotFound, "document", name)
	}
	return &Document{
		ID:        info.Name(),
		Name:      info.Name(),
		Size:      info.Size(),
		CreatedAt: common.FormatTime(info.ModTime()),
		Content:   string(content),
	}, nil
}

// Save stores content under the base of filename, suffixing the name on
// collision so existing uploads are never overwritten.
func (s *Service) Save(filename string, content []byte) (*Document, error) {
	safe := filepath.Base(filepath.Clean("/" + filename))
	if safe == "" || safe == "." || safe == string(filepath.Separator) {
		return nil, apierr.BadRequest(apierr.CodeMissingFilename, "No filename provided", nil)
	}

	path, err := s.resolve(safe)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(safe)
	base := strings.TrimSuffix(safe, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			break
		}
		safe = fmt.Sprintf("%s_%d%s", base, counter, ext)
		if path, err = s.resolve(safe); err != nil {
			return nil, err
		}
	}

	if err := os.WriteFile(path, content, 0o644); err != nil {
		return nil, apierr.Internal(apierr.CodeFileSaveFailed, "Failed to save file")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, apierr.Internal(apierr.CodeFileSaveFailed, "Failed to save file")
	}
	return &Document{
		ID:        safe,
		Name:      safe,
		Size:      info.Size(),
		CreatedAt: common.FormatTime(info.ModTime()),
	}, nil
}

func (s *Service) Delete(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return apierr.NotFound(apierr.CodeDocumentNotFound, "document", name)
	}
	if err := os.Remove(path); err != nil {
		return apierr.Internal(apierr.CodeFileDeleteFailed, "Failed to delete file")
	}
	return nil
}
