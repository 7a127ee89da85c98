// Package interpreter resolves a real Python interpreter to spawn
// supervised targets with. The engine itself is a compiled binary, so
// the resolver must never hand back the engine's own executable.
package interpreter

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// EnvOverride is the environment variable naming an explicit
// interpreter path. It wins over every probe.
const EnvOverride = "PYSCOPE_PYTHON"

// ErrInterpreterNotFound is returned when no usable interpreter was
// found. Callers must surface this instead of launching anything.
var ErrInterpreterNotFound = errors.New("interpreter: no python interpreter found")

// windowsVersionDirs are probed under conventional install roots,
// newest first.
var windowsVersionDirs = []string{"313", "312", "311", "310", "39", "38"}

// Resolver locates a Python interpreter. It is an explicitly
// constructed value with no hidden process-global cache; callers that
// want a fresh resolution simply call Resolve again.
type Resolver struct {
	searchDirs []string
	log        *zap.Logger
}

type Option func(*Resolver)

// WithSearchDirs adds module search directories to probe for an
// interpreter binary. Each directory's parent is probed as well.
func WithSearchDirs(dirs ...string) Option {
	return func(r *Resolver) {
		r.searchDirs = append(r.searchDirs, dirs...)
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(r *Resolver) {
		r.log = log
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		log: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns an absolute path to a real, invocable interpreter.
// Priority order, first match wins:
//
//  1. the EnvOverride variable, if it names an existing file
//  2. the configured search directories, and each one's parent
//  3. directories adjacent to the engine's own executable
//  4. conventional Windows install roots and versioned subdirectories
//  5. a PATH lookup by conventional binary name
func (r *Resolver) Resolve() (string, error) {
	self, _ := os.Executable()

	if override := strings.TrimSpace(os.Getenv(EnvOverride)); override != "" {
		if isFile(override) {
			r.log.Debug("interpreter from override", zap.String("path", override))
			return override, nil
		}
		r.log.Warn("interpreter override does not exist",
			zap.String("path", override),
		)
	}

	names := candidateNames()

	for _, dir := range r.searchDirs {
		if !isDir(dir) {
			continue
		}
		if found := probeDir(dir, names, self); found != "" {
			return found, nil
		}
		// search dirs often point at a lib/ subdirectory, with the
		// interpreter one level up
		if found := probeDir(filepath.Dir(dir), names, self); found != "" {
			return found, nil
		}
	}

	if self != "" {
		if found := probeDir(filepath.Dir(self), names, self); found != "" {
			return found, nil
		}
	}

	if runtime.GOOS == "windows" {
		if found := probeWindowsRoots(self); found != "" {
			return found, nil
		}
	}

	for _, name := range names {
		found, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(found); err == nil {
			found = abs
		}
		if isFile(found) && found != self {
			return found, nil
		}
	}

	return "", ErrInterpreterNotFound
}

func candidateNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"python.exe", "python3.exe"}
	}
	return []string{"python3", "python"}
}

func probeDir(dir string, names []string, self string) string {
	for _, name := range names {
		full := filepath.Join(dir, name)
		if isFile(full) && full != self {
			return full
		}
	}
	return ""
}

// probeWindowsRoots checks the conventional install layouts: Program
// Files, per-user Programs and bare C:\PythonNNN directories, including
// python* subdirectories of each root.
func probeWindowsRoots(self string) string {
	roots := []string{
		os.Getenv("ProgramFiles"),
		os.Getenv("ProgramFiles(x86)"),
		filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs"),
	}

	drive := filepath.VolumeName(self)
	if drive == "" {
		drive = "C:"
	}
	for _, version := range windowsVersionDirs {
		roots = append(roots, drive+`\Python`+version)
	}

	names := []string{"python.exe", "python3.exe"}

	for _, root := range roots {
		if root == "" || !isDir(root) {
			continue
		}

		if found := probeDir(root, names, self); found != "" {
			return found
		}

		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if !strings.HasPrefix(strings.ToLower(entry.Name()), "python") {
				continue
			}
			if found := probeDir(filepath.Join(root, entry.Name()), names, self); found != "" {
				return found
			}
		}
	}

	return ""
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
