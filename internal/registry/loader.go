// Package registry scans the local filesystem for model files and resolves
// catalog ids back to paths. lorad serves one model at a time, so the
// catalog is purely advisory: it feeds /models and lets load requests name a
// model by filename instead of a full path.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lorad/internal/common/fsutil"
	"lorad/pkg/types"
)

// LoadDir scans a directory for *.gguf files and builds a catalog from
// filenames. ID is the full filename including extension; Path is absolute.
func LoadDir(dir string) ([]types.ModelInfo, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.ModelInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		m := types.ModelInfo{ID: name, Path: filepath.Join(abs, name)}
		if info, err := e.Info(); err == nil {
			m.SizeBytes = info.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve turns a load target into a model file path. A value containing a
// path separator (or naming an existing file) passes through as a path;
// otherwise it is looked up as a catalog id under dir.
func Resolve(dir, target string) (string, error) {
	expanded, err := fsutil.ExpandHome(target)
	if err != nil {
		return "", err
	}
	if strings.ContainsRune(expanded, os.PathSeparator) || fsutil.PathExists(expanded) {
		return expanded, nil
	}
	if dir == "" {
		return expanded, nil
	}
	models, err := LoadDir(dir)
	if err != nil {
		return "", err
	}
	for _, m := range models {
		if m.ID == target {
			return m.Path, nil
		}
	}
	return "", fmt.Errorf("model %q not found in %s", target, dir)
}
