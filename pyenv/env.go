// Package pyenv constructs the environment for a supervised child
// process: deterministic UTF-8 stdio, a cleaned inherited PYTHONPATH
// and an auto-discovered module search path rooted at the working
// directory.
package pyenv

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Params describes the target the environment is built for.
type Params struct {
	// Script is the absolute path of the target entry-point.
	Script string

	// Workdir is the resolved working directory of the run. The
	// module discovery walk is rooted here.
	Workdir string

	// ExtraPaths are caller-supplied module search paths, in order.
	ExtraPaths []string
}

// Env is a fully constructed child environment.
type Env struct {
	// Vars is the complete environment in os.Environ form.
	Vars []string

	// ModulePath is the final PYTHONPATH value, discovery results
	// first, any inherited value appended after.
	ModulePath string
}

// skipDirs are never descended into during module discovery: caches,
// version-control metadata, virtual envs and build output.
var skipDirs = map[string]struct{}{
	"__pycache__":  {},
	".git":         {},
	"node_modules": {},
	"venv":         {},
	".venv":        {},
	"env":          {},
	".env":         {},
	"dist":         {},
	"build":        {},
}

// Build produces the full environment for the child. The inherited
// host environment is the base; the three UTF-8 stdio variables are
// forced so the child's text encoding is stable across hosts, and
// PYTHONPATH is rebuilt from the target's directory tree.
func Build(p Params) Env {
	env := environMap()

	env["PYTHONUTF8"] = "1"
	env["PYTHONIOENCODING"] = "utf-8"
	env["PYTHONLEGACYWINDOWSSTDIO"] = "0"

	// An inherited PYTHONPATH may carry entries pointing inside the
	// engine's own installation. Those are meaningless for the
	// external interpreter we are about to spawn; drop them.
	inherited := env["PYTHONPATH"]
	if exe, err := os.Executable(); err == nil {
		inherited = stripUnder(inherited, filepath.Dir(exe))
	}

	paths := append([]string{filepath.Dir(p.Script), p.Workdir}, p.ExtraPaths...)
	paths = append(paths, discoverModuleDirs(p.Workdir)...)
	paths = dedupe(paths)

	modulePath := strings.Join(paths, string(os.PathListSeparator))
	if inherited != "" {
		modulePath = modulePath + string(os.PathListSeparator) + inherited
	}
	env["PYTHONPATH"] = modulePath

	vars := make([]string, 0, len(env))
	for key, value := range env {
		vars = append(vars, key+"="+value)
	}

	return Env{
		Vars:       vars,
		ModulePath: modulePath,
	}
}

// discoverModuleDirs walks root and returns every directory that
// directly contains a Python source file, skipping hidden directories
// and the denylist. The walk is best-effort; unreadable subtrees are
// ignored.
func discoverModuleDirs(root string) []string {
	var dirs []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			name := d.Name()
			if strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			if strings.HasSuffix(name, ".egg-info") {
				return filepath.SkipDir
			}
			if _, skip := skipDirs[name]; skip {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasSuffix(d.Name(), ".py") {
			dir := filepath.Dir(path)
			if len(dirs) == 0 || dirs[len(dirs)-1] != dir {
				dirs = append(dirs, dir)
			}
		}

		return nil
	})

	return dirs
}

// stripUnder removes path-list entries equal to prefix or inside it.
// Plain HasPrefix would also drop siblings like /opt/engine-extras for
// prefix /opt/engine, so the match is separator-aware.
func stripUnder(pathList, prefix string) string {
	if pathList == "" {
		return ""
	}

	var kept []string
	for _, entry := range strings.Split(pathList, string(os.PathListSeparator)) {
		if entry == "" {
			continue
		}
		if entry == prefix || strings.HasPrefix(entry, prefix+string(os.PathSeparator)) {
			continue
		}
		kept = append(kept, entry)
	}

	return strings.Join(kept, string(os.PathListSeparator))
}

// dedupe drops duplicate entries, preserving first-seen order.
func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	unique := make([]string, 0, len(paths))

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		unique = append(unique, path)
	}

	return unique
}

func environMap() map[string]string {
	environ := os.Environ()
	env := make(map[string]string, len(environ))

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		env[key] = value
	}

	return env
}
