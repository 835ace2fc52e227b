package engine

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

const (
	exportMetadataScript = "ExportMetadata.java"
	packProgramScript    = "PackProgram.java"

	// Number of launcher output lines kept in error messages.
	outputTailLines = 20
)

// Upper bound on waiting for launcher output after the launcher was killed.
var waitDelay = 10 * time.Second

//go:embed scripts/*.java
var scripts embed.FS

// GhidraConfig locates a Ghidra install and tunes its launcher.
type GhidraConfig struct {
	InstallDir string
	// ScriptsDir receives the bundled scripts. A temp dir is used when empty.
	ScriptsDir string
	// ExtraArgs are appended to every analyzeHeadless invocation, split with shell rules.
	ExtraArgs string
}

// Ghidra runs Ghidra's headless analyzer. Start must complete before Open is used.
type Ghidra struct {
	log       logrus.FieldLogger
	cfg       GhidraConfig
	extraArgs []string

	mu         sync.Mutex
	started    *atomic.Bool
	launcher   string
	scriptsDir string
	version    Version
}

// NewGhidra validates cfg. Start does the install lookup.
func NewGhidra(log logrus.FieldLogger, cfg GhidraConfig) (*Ghidra, error) {
	extraArgs, err := shellwords.Parse(cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("parsing extra analyzer args: %w", err)
	}
	return &Ghidra{
		log:       log.WithField("component", "ghidra"),
		cfg:       cfg,
		extraArgs: extraArgs,
		started:   atomic.NewBool(false),
	}, nil
}

// Started reports whether Start completed since the last Reset.
func (g *Ghidra) Started() bool {
	return g.started.Load()
}

// Version is known once started.
func (g *Ghidra) Version() Version {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.version
}

// Start locates the launcher, reads the installed version and writes the
// bundled scripts to disk. Calling it on a started engine is a no-op.
func (g *Ghidra) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.started.Load() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	launcher, err := FindLauncher(g.cfg.InstallDir)
	if err != nil {
		return err
	}

	version, err := ReadVersion(g.cfg.InstallDir)
	if err != nil {
		return fmt.Errorf("reading ghidra version: %w", err)
	}

	scriptsDir, err := writeScripts(g.cfg.ScriptsDir)
	if err != nil {
		return fmt.Errorf("writing ghidra scripts: %w", err)
	}

	g.launcher = launcher
	g.scriptsDir = scriptsDir
	g.version = version
	g.started.Store(true)
	g.log.Infof("ghidra started, version=%s, launcher=%s", version, launcher)
	return nil
}

// Reset forgets the started state so the next Start bootstraps again.
func (g *Ghidra) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started.Store(false)
	g.launcher = ""
	g.scriptsDir = ""
	g.version = Version{}
}

// Open imports and auto-analyzes the binary into a project named
// opts.ProjectName under opts.ProjectLocation and exports its metadata.
func (g *Ghidra) Open(ctx context.Context, opts OpenOptions) (Session, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	started, launcher, scriptsDir := g.started.Load(), g.launcher, g.scriptsDir
	g.mu.Unlock()
	if !started {
		return nil, ErrNotStarted
	}

	s := &ghidraSession{
		log:          g.log.WithField("project", opts.ProjectName),
		launcher:     launcher,
		scriptsDir:   scriptsDir,
		extraArgs:    g.extraArgs,
		location:     opts.ProjectLocation,
		name:         opts.ProjectName,
		program:      filepath.Base(opts.BinaryPath),
		metadataPath: filepath.Join(opts.ProjectLocation, opts.ProjectName+".metadata.json"),
	}

	args := []string{
		"-import", opts.BinaryPath,
		"-overwrite",
		"-scriptPath", scriptsDir,
		"-postScript", exportMetadataScript, s.metadataPath,
	}
	if err := s.headless(ctx, args...); err != nil {
		return nil, errors.Join(fmt.Errorf("analyzing %s: %w", opts.BinaryPath, err), s.removeProject())
	}
	if _, err := os.Stat(s.metadataPath); err != nil {
		return nil, errors.Join(fmt.Errorf("analyzing %s: metadata was not exported: %w", opts.BinaryPath, err), s.removeProject())
	}
	return s, nil
}

type ghidraSession struct {
	log          logrus.FieldLogger
	launcher     string
	scriptsDir   string
	extraArgs    []string
	location     string
	name         string
	program      string
	metadataPath string

	closed bool
}

func (s *ghidraSession) Metadata(ctx context.Context) (Metadata, error) {
	if s.closed {
		return Metadata{}, ErrSessionClosed
	}
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}
	f, err := os.Open(s.metadataPath)
	if err != nil {
		return Metadata{}, fmt.Errorf("opening exported metadata: %w", err)
	}
	defer f.Close()
	return DecodeMetadata(f)
}

func (s *ghidraSession) Pack(ctx context.Context, path string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing previous pack file: %w", err)
	}

	args := []string{
		"-process", s.program,
		"-noanalysis",
		"-readOnly",
		"-scriptPath", s.scriptsDir,
		"-postScript", packProgramScript, path,
	}
	if err := s.headless(ctx, args...); err != nil {
		return fmt.Errorf("packing project %s: %w", s.name, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("packing project %s: %w", s.name, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("packing project %s: %s is empty", s.name, path)
	}
	return nil
}

// Close deletes the engine project. The exported pack file is left in place.
func (s *ghidraSession) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	return s.removeProject()
}

func (s *ghidraSession) removeProject() error {
	var errs []error
	for _, p := range []string{
		filepath.Join(s.location, s.name+".rep"),
		filepath.Join(s.location, s.name+".gpr"),
		filepath.Join(s.location, s.name+".lock"),
		filepath.Join(s.location, s.name+".lock~"),
		s.metadataPath,
	} {
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *ghidraSession) headless(ctx context.Context, args ...string) error {
	args = append([]string{s.location, s.name}, args...)
	args = append(args, s.extraArgs...)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, s.launcher, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)

	s.log.Debugf("running %s %s", s.launcher, strings.Join(args, " "))
	err := cmd.Run()

	lines := splitLines(out.Bytes())
	for _, line := range lines {
		s.log.Debug(line)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("analyzeHeadless: %w", ctxErr)
		}
		if len(lines) > outputTailLines {
			lines = lines[len(lines)-outputTailLines:]
		}
		return fmt.Errorf("analyzeHeadless: %w\n%s", err, strings.Join(lines, "\n"))
	}
	return nil
}

// FindLauncher returns the analyzeHeadless path inside a Ghidra install dir.
func FindLauncher(installDir string) (string, error) {
	if installDir == "" {
		return "", ErrLauncherNotFound
	}
	candidates := []string{
		filepath.Join(installDir, "support", "analyzeHeadless"),
		filepath.Join(installDir, "libexec", "support", "analyzeHeadless"),
	}
	for _, p := range candidates {
		if runtime.GOOS == "windows" {
			p += ".bat"
		}
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrLauncherNotFound, installDir)
}

func writeScripts(dir string) (string, error) {
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "ghidra-scripts-")
		if err != nil {
			return "", err
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	entries, err := scripts.ReadDir("scripts")
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		data, err := scripts.ReadFile("scripts/" + e.Name())
		if err != nil {
			return "", err
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func splitLines(data []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimRight(scanner.Text(), "\r"); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
