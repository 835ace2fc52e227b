package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"ghidra_auto_analysis/analysis-service/pkg/engine"
	"ghidra_auto_analysis/analysis-service/pkg/result"
)

const (
	MetadataSectionTitle   = "Ghidra Metadata"
	SupplementaryDesc      = "Ghidra analysis database"
	PackExtension          = ".gzf"
	requiredLibraryPrefix  = "Required Library"
	installDirNotSetErrMsg = "GHIDRA_INSTALL_DIR environment variable not set"
)

// ErrInstallDirNotSet fails Start when no Ghidra install dir is configured.
var ErrInstallDirNotSet = errors.New(installDirNotSetErrMsg)

// metadataTags maps engine metadata keys to tag types, applied in this order.
var metadataTags = []struct {
	key     string
	tagType string
}{
	{key: "Compiler ID", tagType: result.TagFileCompiler},
	{key: "Compiler", tagType: result.TagFileCompiler},
}

// Request is one submission as seen from the service. It is provided by the host.
type Request interface {
	FilePath() string
	FileName() string
	// WorkDir is a scratch directory owned by this request only.
	WorkDir() string
	AddSupplementary(path, name, description string, relation result.ParentRelation) error
	SetResult(res *result.Result)
}

// Processor analyzes submissions with a started engine.
type Processor struct {
	log        logrus.FieldLogger
	installDir string
	engine     engine.Engine
}

// New returns a processor. Call Start before Execute.
func New(log logrus.FieldLogger, installDir string, eng engine.Engine) *Processor {
	return &Processor{
		log:        log.WithField("component", "processor"),
		installDir: installDir,
		engine:     eng,
	}
}

// Start checks the engine install dir is configured and starts the engine
// if it is not running yet.
func (p *Processor) Start(ctx context.Context) error {
	if p.installDir == "" {
		p.log.Error(installDirNotSetErrMsg)
		return ErrInstallDirNotSet
	}
	if !p.engine.Started() {
		p.log.Info("starting ghidra")
		if err := p.engine.Start(ctx); err != nil {
			return fmt.Errorf("starting ghidra: %w", err)
		}
	}
	return nil
}

// Execute analyzes one submission. On success the request holds the metadata
// result and the packed analysis database as a supplementary file.
func (p *Processor) Execute(ctx context.Context, req Request) error {
	res, packPath, err := p.analyze(ctx, req)
	if err != nil {
		return err
	}

	name := req.FileName() + PackExtension
	if err := req.AddSupplementary(packPath, name, SupplementaryDesc, result.ParentRelationInformation); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	req.SetResult(res)
	return nil
}

// analyze runs everything that needs the session open and releases it on return.
func (p *Processor) analyze(ctx context.Context, req Request) (res *result.Result, packPath string, rerr error) {
	session, err := p.engine.Open(ctx, engine.OpenOptions{
		BinaryPath:      req.FilePath(),
		ProjectName:     req.FileName(),
		ProjectLocation: req.WorkDir(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("opening analysis session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			rerr = errors.Join(rerr, fmt.Errorf("closing analysis session: %w", err))
		}
	}()

	p.log.Infof("analyzing %s with ghidra", req.FileName())

	md, err := session.Metadata(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("reading metadata: %w", err)
	}

	section := BuildMetadataSection(md)
	DeriveTags(section, md)
	res = result.New()
	res.AddSection(section)

	packPath = filepath.Join(req.WorkDir(), req.FileName()+PackExtension)
	if err := session.Pack(ctx, packPath); err != nil {
		return nil, "", fmt.Errorf("writing analysis database: %w", err)
	}
	return res, packPath, nil
}

// BuildMetadataSection lists every metadata entry in engine order.
func BuildMetadataSection(md engine.Metadata) *result.Section {
	var body result.KVBody
	for _, e := range md.Entries() {
		body.Set(e.Key, e.Value)
	}
	return result.NewKVSection(MetadataSectionTitle, body)
}

// DeriveTags adds a library tag per "Required Library" entry and the
// compiler tags for whichever compiler keys are present.
func DeriveTags(section *result.Section, md engine.Metadata) {
	for _, e := range md.Entries() {
		if strings.HasPrefix(e.Key, requiredLibraryPrefix) {
			section.AddTag(result.TagFileLibrary, e.Value)
		}
	}
	for _, t := range metadataTags {
		if v, ok := md.Get(t.key); ok {
			section.AddTag(t.tagType, v)
		}
	}
}
