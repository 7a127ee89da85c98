package pyenv_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyscope/pyscope/pyenv"
)

func TestBuild_ForcesUTF8(t *testing.T) {
	workdir := t.TempDir()

	env := pyenv.Build(pyenv.Params{
		Script:  filepath.Join(workdir, "main.py"),
		Workdir: workdir,
	})

	assert.Contains(t, env.Vars, "PYTHONUTF8=1")
	assert.Contains(t, env.Vars, "PYTHONIOENCODING=utf-8")
	assert.Contains(t, env.Vars, "PYTHONLEGACYWINDOWSSTDIO=0")
}

func TestBuild_DiscoversModuleDirs(t *testing.T) {
	workdir := t.TempDir()

	pkg := filepath.Join(workdir, "pkg")
	writeSource(t, pkg, "mod.py")

	// hidden and denylisted directories are not descended into
	writeSource(t, filepath.Join(workdir, ".secret"), "hidden.py")
	writeSource(t, filepath.Join(workdir, "venv"), "site.py")
	writeSource(t, filepath.Join(workdir, "__pycache__"), "mod.cpython-312.py")
	writeSource(t, filepath.Join(workdir, "thing.egg-info"), "setup.py")

	env := pyenv.Build(pyenv.Params{
		Script:  filepath.Join(workdir, "main.py"),
		Workdir: workdir,
	})

	entries := pathEntries(env.ModulePath)
	assert.Contains(t, entries, pkg)
	assert.NotContains(t, entries, filepath.Join(workdir, ".secret"))
	assert.NotContains(t, entries, filepath.Join(workdir, "venv"))
	assert.NotContains(t, entries, filepath.Join(workdir, "__pycache__"))
	assert.NotContains(t, entries, filepath.Join(workdir, "thing.egg-info"))
}

func TestBuild_DedupesPreservingOrder(t *testing.T) {
	workdir := t.TempDir()

	extra := filepath.Join(workdir, "pkg")
	writeSource(t, extra, "mod.py")

	env := pyenv.Build(pyenv.Params{
		Script:  filepath.Join(workdir, "main.py"),
		Workdir: workdir,
		// duplicates of both the workdir and the discovered dir
		ExtraPaths: []string{extra, workdir, extra},
	})

	entries := pathEntries(env.ModulePath)

	assert.Equal(t, 1, count(entries, extra))
	assert.Equal(t, 1, count(entries, workdir))

	// script dir and workdir lead, extras follow
	assert.Equal(t, workdir, entries[0])
	assert.Equal(t, extra, entries[1])
}

func TestBuild_PrependsToInheritedPythonPath(t *testing.T) {
	workdir := t.TempDir()
	inherited := filepath.Join(workdir, "inherited")

	t.Setenv("PYTHONPATH", inherited)

	env := pyenv.Build(pyenv.Params{
		Script:  filepath.Join(workdir, "main.py"),
		Workdir: workdir,
	})

	entries := pathEntries(env.ModulePath)
	assert.Equal(t, inherited, entries[len(entries)-1])
}

func TestBuild_StripsEntriesUnderEngineDir(t *testing.T) {
	workdir := t.TempDir()

	exe, err := os.Executable()
	require.NoError(t, err)
	poisoned := filepath.Join(filepath.Dir(exe), "bundle")

	// a sibling of the engine dir sharing its name as a prefix is kept
	sibling := filepath.Dir(exe) + "-extras"

	t.Setenv("PYTHONPATH", poisoned+string(os.PathListSeparator)+sibling)

	env := pyenv.Build(pyenv.Params{
		Script:  filepath.Join(workdir, "main.py"),
		Workdir: workdir,
	})

	entries := pathEntries(env.ModulePath)
	assert.NotContains(t, entries, poisoned)
	assert.Contains(t, entries, sibling)
}

func writeSource(t *testing.T, dir, name string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("pass\n"), 0o644))
}

func pathEntries(pathList string) []string {
	return strings.Split(pathList, string(os.PathListSeparator))
}

func count(entries []string, want string) int {
	var n int
	for _, entry := range entries {
		if entry == want {
			n++
		}
	}
	return n
}
