// Package resolver is the Tool Resolver (C2): given a tool name, it returns
// a concrete invocation prefix using the highest-priority available tier
// (bundled → local PATH → containerized), memoized per run.
package resolver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/tinyland-inc/huskycat/pkg/logger"
	"github.com/tinyland-inc/huskycat/pkg/model"
)

var resolverLog = logger.New("resolver")

// ErrToolUnavailable is returned when no tier can satisfy a tool request.
var ErrToolUnavailable = fmt.Errorf("tool unavailable")

// Command is a ready-to-invoke command prefix for a tool.
type Command struct {
	Tier        model.Tier
	Executable  string
	PrependArgs []string // e.g. docker run ... <image>, before the tool's own argv
	// PathPrepend, when non-empty, is a directory the caller should put
	// ahead of PATH before exec'ing this command. Set for the bundled tier
	// so a tool that shells out to a helper (e.g. a linter invoking its own
	// formatter) finds the cached copy before whatever the host has on PATH.
	PathPrepend string
}

// ContainerImages maps a tool name to the image used for container
// fallback (tier 4). Tools without an entry cannot fall back to a
// container.
type ContainerImages map[string]string

// Resolver resolves tool names to invocation prefixes for one run.
type Resolver struct {
	bundled     map[string]string // tool name -> absolute path, from the Tool Extractor
	images      ContainerImages
	workDir     string
	cacheDir    string // directory bundled tools were extracted to, for PathPrepend
	inContainer bool
	runtime     string // "docker", "podman", or "" if none available

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	cmd Command
	err error
}

// New constructs a Resolver. bundled is the map returned by the Tool
// Extractor's Ensure(); it may be nil/empty when the process is not a
// bundled distribution. cacheDir is the directory those tools were
// extracted to (the same one passed to toolcache.New); it is used to build
// the bundled tier's PathPrepend.
func New(bundled map[string]string, images ContainerImages, workDir, cacheDir string) *Resolver {
	return &Resolver{
		bundled:     bundled,
		images:      images,
		workDir:     workDir,
		cacheDir:    cacheDir,
		inContainer: detectInContainer(),
		runtime:     detectContainerRuntime(),
		cache:       make(map[string]cacheEntry),
	}
}

// Resolve returns the invocation prefix for name, whose PATH-lookup
// executable is executable. Results are memoized per (name) for the
// lifetime of the Resolver.
func (r *Resolver) Resolve(ctx context.Context, name, executable string) (Command, error) {
	r.mu.Lock()
	if entry, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return entry.cmd, entry.err
	}
	r.mu.Unlock()

	cmd, err := r.resolveUncached(name, executable)

	r.mu.Lock()
	r.cache[name] = cacheEntry{cmd: cmd, err: err}
	r.mu.Unlock()

	return cmd, err
}

func (r *Resolver) resolveUncached(name, executable string) (Command, error) {
	// Tier 1: cached-bundled path.
	if path, ok := r.bundled[name]; ok {
		if info, statErr := os.Stat(path); statErr == nil && isExecutable(info) {
			resolverLog.Printf("%s resolved to bundled path %s", name, path)
			return Command{Tier: model.TierBundled, Executable: path, PathPrepend: r.cacheDir}, nil
		}
	}

	// Tier 2: already inside a container environment - the image guarantees availability.
	if r.inContainer {
		resolverLog.Printf("%s resolved via in-container PATH (running inside container)", name)
		return Command{Tier: model.TierContainer, Executable: executable}, nil
	}

	// Tier 3: local PATH.
	if path, err := exec.LookPath(executable); err == nil {
		resolverLog.Printf("%s resolved to local PATH %s", name, path)
		return Command{Tier: model.TierLocal, Executable: path}, nil
	}

	// Tier 4: container runtime available on host - run inside a known image.
	if r.runtime != "" {
		image, ok := r.images[name]
		if ok {
			resolverLog.Printf("%s falling back to container image %s via %s", name, image, r.runtime)
			return Command{
				Tier:       model.TierContainerFallback,
				Executable: r.runtime,
				PrependArgs: []string{
					"run", "--rm",
					"-v", fmt.Sprintf("%s:/workdir", r.workDir),
					"-w", "/workdir",
					image,
				},
			}, nil
		}
	}

	// Tier 5: unavailable.
	return Command{}, fmt.Errorf("%w: %s", ErrToolUnavailable, name)
}

func isExecutable(info os.FileInfo) bool {
	return !info.IsDir() && info.Mode()&0111 != 0
}

// detectInContainer checks well-known container markers.
func detectInContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	if v, ok := os.LookupEnv("container"); ok && v != "" {
		return true
	}
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		s := string(data)
		if strings.Contains(s, "docker") || strings.Contains(s, "kubepods") || strings.Contains(s, "containerd") {
			return true
		}
	}
	return false
}

func detectContainerRuntime() string {
	for _, candidate := range []string{"docker", "podman"} {
		if _, err := exec.LookPath(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
