// Package toolcache is the Tool Extractor (C1): when huskycat is running as
// a self-contained single-file distribution embedding native tool binaries,
// it materializes those tools to a per-user cache before the Tool Resolver
// is first consulted.
package toolcache

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tinyland-inc/huskycat/pkg/console"
	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
	"github.com/tinyland-inc/huskycat/pkg/tty"
)

var cacheLog = logger.New("toolcache")

const manifestFileName = "manifest.json"

// Bundle describes the embedded tools a bundled distribution carries.
// BundleVersion is a build-time stamp; Files maps tool name to the path of
// its embedded file within the bundle's virtual filesystem.
type Bundle struct {
	Version string
	FS      fs.FS
	Files   map[string]string
}

// Extractor materializes a Bundle's tools to an on-disk cache directory,
// gated by version so repeat invocations are a no-op.
type Extractor struct {
	cacheDir string
}

// New returns an Extractor that stores tools under cacheDir (typically
// ~/.huskycat/tools).
func New(cacheDir string) *Extractor {
	return &Extractor{cacheDir: cacheDir}
}

// IsBundled detects whether the current process is a bundled distribution:
// a non-nil Bundle with a non-empty Files map.
func IsBundled(b *Bundle) bool {
	return b != nil && len(b.Files) > 0
}

// Ensure materializes the bundle's tools to the cache directory if the
// on-disk manifest version differs from the bundle's, and returns the
// resulting tool name -> absolute path mapping. If b is not a bundled
// distribution, it returns an empty map and does nothing (§4.1).
//
// Extraction failures are non-fatal: they are logged and an empty mapping
// is returned so downstream tiers can still satisfy tools from PATH or
// container.
func (e *Extractor) Ensure(b *Bundle) map[string]string {
	if !IsBundled(b) {
		cacheLog.Print("process is not a bundled distribution, skipping extraction")
		return map[string]string{}
	}

	existing, err := e.readManifest()
	if err == nil && existing.BundleVersion == b.Version {
		cacheLog.Printf("cache already at bundle version %s, skipping extraction", b.Version)
		return existing.Tools
	}

	if err := os.MkdirAll(e.cacheDir, 0755); err != nil {
		cacheLog.Printf("failed to create cache dir %s: %v", e.cacheDir, err)
		return map[string]string{}
	}

	showProgress := tty.IsStderrTerminal() && len(b.Files) > 1
	var bar *console.ProgressBar
	if showProgress {
		bar = console.NewProgressBar(int64(len(b.Files)))
	}

	paths := make(map[string]string, len(b.Files))
	var extracted int64
	for name, srcPath := range b.Files {
		dstPath := filepath.Join(e.cacheDir, name)
		if err := e.copyFile(b.FS, srcPath, dstPath); err != nil {
			cacheLog.Printf("failed to extract tool %s: %v", name, err)
			continue
		}
		paths[name] = dstPath
		extracted++
		if showProgress {
			fmt.Fprintf(os.Stderr, "\rextracting bundled tools: %s", bar.Update(extracted))
		}
	}
	if showProgress {
		fmt.Fprintln(os.Stderr)
	}

	if len(paths) == 0 {
		cacheLog.Print("no tools were extracted, leaving manifest untouched")
		return map[string]string{}
	}

	manifest := model.CacheManifest{BundleVersion: b.Version, Tools: paths}
	if err := e.writeManifestAtomic(manifest); err != nil {
		// Partial extraction must not leave a valid manifest referencing it.
		cacheLog.Printf("failed to write manifest, reporting tools as unavailable: %v", err)
		return map[string]string{}
	}

	return paths
}

func (e *Extractor) copyFile(src fs.FS, srcPath, dstPath string) error {
	in, err := src.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open embedded tool %s: %w", srcPath, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dstPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0755)
	if err != nil {
		return fmt.Errorf("create cache file %s: %w", dstPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy tool to cache: %w", err)
	}
	return out.Chmod(0755)
}

func (e *Extractor) manifestPath() string {
	return filepath.Join(e.cacheDir, manifestFileName)
}

func (e *Extractor) readManifest() (model.CacheManifest, error) {
	var m model.CacheManifest
	data, err := os.ReadFile(e.manifestPath())
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	return m, nil
}

// writeManifestAtomic writes the manifest last, after every tool file has
// been copied, via write-temp-then-rename so a crash mid-extraction never
// leaves a manifest pointing at a half-populated cache.
func (e *Extractor) writeManifestAtomic(m model.CacheManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(e.cacheDir, "manifest-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, e.manifestPath())
}

// PrependToPath returns a PATH value with dir prepended, for use when
// spawning child processes so extracted tools are found first.
func PrependToPath(dir string) string {
	existing := os.Getenv("PATH")
	if existing == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + existing
}
