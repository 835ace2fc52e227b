package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"ghidra_auto_analysis/analysis-service/pkg/engine"
	"ghidra_auto_analysis/analysis-service/pkg/logging"
	"ghidra_auto_analysis/analysis-service/pkg/result"
)

type fakeEngine struct {
	started  bool
	startErr error
	starts   int

	openErr  error
	session  *fakeSession
	openOpts []engine.OpenOptions
}

func (e *fakeEngine) Started() bool { return e.started }

func (e *fakeEngine) Start(ctx context.Context) error {
	e.starts++
	if e.startErr != nil {
		return e.startErr
	}
	e.started = true
	return nil
}

func (e *fakeEngine) Open(ctx context.Context, opts engine.OpenOptions) (engine.Session, error) {
	e.openOpts = append(e.openOpts, opts)
	if e.openErr != nil {
		return nil, e.openErr
	}
	return e.session, nil
}

type fakeSession struct {
	md          engine.Metadata
	metadataErr error
	packErr     error
	closeErr    error

	metadataReads int
	packedTo      string
	closes        int
	// events is shared with fakeRequest to check call ordering.
	events *[]string
}

func (s *fakeSession) Metadata(ctx context.Context) (engine.Metadata, error) {
	s.metadataReads++
	s.record("metadata")
	return s.md, s.metadataErr
}

func (s *fakeSession) Pack(ctx context.Context, path string) error {
	s.record("pack")
	if s.packErr != nil {
		return s.packErr
	}
	s.packedTo = path
	return os.WriteFile(path, []byte("gzf"), 0o644)
}

func (s *fakeSession) Close() error {
	s.closes++
	s.record("close")
	return s.closeErr
}

func (s *fakeSession) record(event string) {
	if s.events != nil {
		*s.events = append(*s.events, event)
	}
}

type supplementary struct {
	path, name, description string
	relation                result.ParentRelation
}

type fakeRequest struct {
	filePath, fileName, workDir string

	addErr        error
	supplementary []supplementary
	result        *result.Result
	events        *[]string
}

func (r *fakeRequest) FilePath() string { return r.filePath }
func (r *fakeRequest) FileName() string { return r.fileName }
func (r *fakeRequest) WorkDir() string  { return r.workDir }

func (r *fakeRequest) AddSupplementary(path, name, description string, relation result.ParentRelation) error {
	if r.events != nil {
		*r.events = append(*r.events, "register")
	}
	if r.addErr != nil {
		return r.addErr
	}
	r.supplementary = append(r.supplementary, supplementary{path, name, description, relation})
	return nil
}

func (r *fakeRequest) SetResult(res *result.Result) {
	if r.events != nil {
		*r.events = append(*r.events, "result")
	}
	r.result = res
}

func newTestRequest(t *testing.T, name string) *fakeRequest {
	t.Helper()
	return &fakeRequest{
		filePath: filepath.Join(t.TempDir(), name),
		fileName: name,
		workDir:  t.TempDir(),
	}
}

func sampleMetadata() engine.Metadata {
	return engine.NewMetadata(
		engine.Entry{Key: "Compiler ID", Value: "clang"},
		engine.Entry{Key: "Required Library 1", Value: "libc.so.6"},
		engine.Entry{Key: "Entry Point", Value: "0x401000"},
	)
}

func TestStart(t *testing.T) {
	t.Run("install dir not set", func(t *testing.T) {
		r := require.New(t)
		eng := &fakeEngine{}
		p := New(logging.NewTestLog(), "", eng)

		err := p.Start(context.Background())
		r.ErrorIs(err, ErrInstallDirNotSet)
		r.Equal(0, eng.starts)
	})

	t.Run("starts engine once", func(t *testing.T) {
		r := require.New(t)
		eng := &fakeEngine{}
		p := New(logging.NewTestLog(), "/opt/ghidra", eng)

		r.NoError(p.Start(context.Background()))
		r.NoError(p.Start(context.Background()))
		r.NoError(New(logging.NewTestLog(), "/opt/ghidra", eng).Start(context.Background()))
		r.Equal(1, eng.starts)
	})

	t.Run("engine already running", func(t *testing.T) {
		r := require.New(t)
		eng := &fakeEngine{started: true}
		p := New(logging.NewTestLog(), "/opt/ghidra", eng)

		r.NoError(p.Start(context.Background()))
		r.Equal(0, eng.starts)
	})

	t.Run("engine start fails", func(t *testing.T) {
		r := require.New(t)
		eng := &fakeEngine{startErr: engine.ErrLauncherNotFound}
		p := New(logging.NewTestLog(), "/opt/ghidra", eng)

		r.ErrorIs(p.Start(context.Background()), engine.ErrLauncherNotFound)
	})
}

func TestExecute(t *testing.T) {
	t.Run("sample submission", func(t *testing.T) {
		r := require.New(t)
		var events []string
		session := &fakeSession{md: sampleMetadata(), events: &events}
		eng := &fakeEngine{started: true, session: session}
		p := New(logging.NewTestLog(), "/opt/ghidra", eng)
		req := newTestRequest(t, "sample.exe")
		req.events = &events

		r.NoError(p.Execute(context.Background(), req))

		r.Equal([]engine.OpenOptions{{
			BinaryPath:      req.filePath,
			ProjectName:     "sample.exe",
			ProjectLocation: req.workDir,
		}}, eng.openOpts)
		r.Equal([]string{"metadata", "pack", "close", "register", "result"}, events)
		r.Equal(1, session.metadataReads)
		r.Equal(1, session.closes)

		r.NotNil(req.result)
		r.Len(req.result.Sections, 1)
		section := req.result.Sections[0]
		r.Equal(MetadataSectionTitle, section.TitleText)
		r.Equal(result.BodyFormatKeyValue, section.BodyFormat)
		r.Equal([]result.KV{
			{Key: "Compiler ID", Value: "clang"},
			{Key: "Required Library 1", Value: "libc.so.6"},
			{Key: "Entry Point", Value: "0x401000"},
		}, section.Body.Items())
		r.Equal([]string{"clang"}, section.Tags.Get(result.TagFileCompiler))
		r.Equal([]string{"libc.so.6"}, section.Tags.Get(result.TagFileLibrary))
		r.Equal(2, section.Tags.Len())

		gzf := filepath.Join(req.workDir, "sample.exe.gzf")
		r.Equal(gzf, session.packedTo)
		r.Equal([]supplementary{{
			path:        gzf,
			name:        "sample.exe.gzf",
			description: "Ghidra analysis database",
			relation:    result.ParentRelationInformation,
		}}, req.supplementary)
		info, err := os.Stat(gzf)
		r.NoError(err)
		r.NotZero(info.Size())
	})

	failures := []struct {
		name    string
		session *fakeSession
		addErr  error
		wantErr string
	}{
		{
			name:    "metadata read fails",
			session: &fakeSession{metadataErr: errors.New("no program")},
			wantErr: "reading metadata: no program",
		},
		{
			name:    "pack fails",
			session: &fakeSession{md: sampleMetadata(), packErr: errors.New("disk full")},
			wantErr: "writing analysis database: disk full",
		},
		{
			name:    "close fails",
			session: &fakeSession{md: sampleMetadata(), closeErr: errors.New("locked")},
			wantErr: "closing analysis session: locked",
		},
		{
			name:    "register fails",
			session: &fakeSession{md: sampleMetadata()},
			addErr:  errors.New("store unavailable"),
			wantErr: "registering sample.exe.gzf: store unavailable",
		},
	}
	for _, tc := range failures {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			eng := &fakeEngine{started: true, session: tc.session}
			p := New(logging.NewTestLog(), "/opt/ghidra", eng)
			req := newTestRequest(t, "sample.exe")
			req.addErr = tc.addErr

			err := p.Execute(context.Background(), req)
			r.ErrorContains(err, tc.wantErr)
			r.Equal(1, tc.session.closes)
			r.Nil(req.result)
		})
	}

	t.Run("open fails", func(t *testing.T) {
		r := require.New(t)
		openErr := errors.New("not a binary")
		eng := &fakeEngine{started: true, openErr: openErr}
		p := New(logging.NewTestLog(), "/opt/ghidra", eng)
		req := newTestRequest(t, "sample.exe")

		err := p.Execute(context.Background(), req)
		r.ErrorIs(err, openErr)
		r.Nil(req.result)
		r.Empty(req.supplementary)
	})
}

func TestDeriveTags(t *testing.T) {
	tests := []struct {
		name          string
		md            engine.Metadata
		wantLibraries []string
		wantCompilers []string
	}{
		{
			name: "no recognized keys",
			md: engine.NewMetadata(
				engine.Entry{Key: "Entry Point", Value: "0x401000"},
				engine.Entry{Key: "Library", Value: "not-a-required-one"},
			),
		},
		{
			name: "libraries in order",
			md: engine.NewMetadata(
				engine.Entry{Key: "Required Library [    0]", Value: "KERNEL32.DLL"},
				engine.Entry{Key: "Entry Point", Value: "0x401000"},
				engine.Entry{Key: "Required Library [    1]", Value: "USER32.DLL"},
				engine.Entry{Key: "required library lowercase", Value: "ignored.dll"},
			),
			wantLibraries: []string{"KERNEL32.DLL", "USER32.DLL"},
		},
		{
			name: "library with an empty value",
			md: engine.NewMetadata(
				engine.Entry{Key: "Required Library [    0]", Value: ""},
				engine.Entry{Key: "Required Library [    1]", Value: "libc.so.6"},
			),
			wantLibraries: []string{"libc.so.6"},
		},
		{
			name: "empty compiler id",
			md: engine.NewMetadata(
				engine.Entry{Key: "Compiler ID", Value: ""},
				engine.Entry{Key: "Compiler", Value: "gcc"},
			),
			wantCompilers: []string{"gcc"},
		},
		{
			name: "compiler name only",
			md: engine.NewMetadata(
				engine.Entry{Key: "Compiler", Value: "visualstudio:unknown"},
			),
			wantCompilers: []string{"visualstudio:unknown"},
		},
		{
			name: "both compiler keys, compiler id first",
			md: engine.NewMetadata(
				engine.Entry{Key: "Compiler", Value: "gcc"},
				engine.Entry{Key: "Compiler ID", Value: "default"},
			),
			wantCompilers: []string{"default", "gcc"},
		},
		{
			name: "both compiler keys with the same value",
			md: engine.NewMetadata(
				engine.Entry{Key: "Compiler ID", Value: "gcc"},
				engine.Entry{Key: "Compiler", Value: "gcc"},
			),
			wantCompilers: []string{"gcc"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := require.New(t)
			section := BuildMetadataSection(tc.md)
			r.Equal(tc.md.Len(), section.Body.Len())

			DeriveTags(section, tc.md)
			r.Equal(tc.wantLibraries, section.Tags.Get(result.TagFileLibrary))
			r.Equal(tc.wantCompilers, section.Tags.Get(result.TagFileCompiler))

			// Deriving twice changes nothing.
			DeriveTags(section, tc.md)
			r.Equal(tc.wantLibraries, section.Tags.Get(result.TagFileLibrary))
			r.Equal(tc.wantCompilers, section.Tags.Get(result.TagFileCompiler))
		})
	}
}
