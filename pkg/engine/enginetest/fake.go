// Package enginetest provides a fake Ghidra installation for tests.
package enginetest

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeLauncher mimics analyzeHeadless: it logs its arguments, creates the
// project files on -import, and writes the post script output. The metadata
// it exports is read from metadata.json next to the launcher. Marker files
// next to the launcher switch on failures: fail, no-export, empty-pack. With
// hang the launcher waits on a child process holding its output open, like
// analyzeHeadless waiting on the JVM.
const fakeLauncher = `#!/bin/sh
dir=$(cd "$(dirname "$0")" && pwd)
echo "$@" >> "$dir/calls.log"
if [ -f "$dir/hang" ]; then
	sleep 30
fi
if [ -f "$dir/fail" ]; then
	echo "ERROR: analysis failed"
	exit 1
fi
loc="$1"
name="$2"
shift 2
script=""
out=""
while [ $# -gt 0 ]; do
	case "$1" in
	-import)
		mkdir -p "$loc/$name.rep"
		touch "$loc/$name.gpr"
		shift 2
		;;
	-postScript)
		script="$2"
		out="$3"
		shift 3
		;;
	*)
		shift
		;;
	esac
done
case "$script" in
ExportMetadata.java)
	if [ ! -f "$dir/no-export" ]; then
		cp "$dir/metadata.json" "$out"
	fi
	;;
PackProgram.java)
	if [ -f "$dir/empty-pack" ]; then
		: > "$out"
	else
		printf 'packed %s' "$name" > "$out"
	fi
	;;
esac
echo "INFO  REPORT: done"
`

// FakeInstall is a Ghidra install dir with a scripted analyzeHeadless.
type FakeInstall struct {
	Dir string
}

// NewFakeInstall creates an install dir whose launcher exports metadata, a
// JSON array of {"key","value"} objects.
func NewFakeInstall(t *testing.T, metadata string) *FakeInstall {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake launcher is a shell script")
	}
	dir := t.TempDir()
	support := filepath.Join(dir, "support")
	require.NoError(t, os.MkdirAll(support, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(support, "analyzeHeadless"), []byte(fakeLauncher), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(support, "metadata.json"), []byte(metadata), 0o644))
	return &FakeInstall{Dir: dir}
}

// Touch creates a marker file next to the launcher.
func (f *FakeInstall) Touch(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir, "support", name), nil, 0o644))
}

// WriteProperties writes Ghidra/application.properties.
func (f *FakeInstall) WriteProperties(t *testing.T, props string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.Dir, "Ghidra"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.Dir, "Ghidra", "application.properties"), []byte(props), 0o644))
}

// Calls returns the argument lines of every launcher invocation.
func (f *FakeInstall) Calls(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.Dir, "support", "calls.log"))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
