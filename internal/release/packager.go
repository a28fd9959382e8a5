// Package release cross-compiles airtwitch and bundles one archive per
// target plus a SHA256SUMS file.
package release

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

const (
	appName       = "airtwitch"
	versionSymbol = "github.com/kar10s/airtwitch/internal/buildinfo.Version"
	checksumFile  = "SHA256SUMS"
	stageDirName  = ".stage"
)

type Target struct {
	GOOS   string
	GOARCH string
}

func (t Target) String() string {
	return t.GOOS + "/" + t.GOARCH
}

type Artifact struct {
	Target         Target
	ArchiveName    string
	ArchivePath    string
	PackageDirName string
}

// Build describes one binary to compile. Output is a path inside the
// packager's filesystem.
type Build struct {
	RepoRoot string
	Target   Target
	Output   string
	LDFlags  string
}

// Builder produces the binary described by b.
type Builder func(ctx context.Context, b Build) error

type Options struct {
	OutDir   string
	RepoRoot string
	Version  string
	Targets  []Target
	Docs     []string // repo-relative, copied next to the binary

	Fs      afero.Fs
	Builder Builder
	Logger  zerolog.Logger
}

var DefaultTargets = []Target{
	{GOOS: "linux", GOARCH: "amd64"},
	{GOOS: "linux", GOARCH: "arm64"},
	{GOOS: "darwin", GOARCH: "amd64"},
	{GOOS: "darwin", GOARCH: "arm64"},
	{GOOS: "windows", GOARCH: "amd64"},
	{GOOS: "windows", GOARCH: "arm64"},
}

// ParseTargets reads a comma-separated goos/goarch list. An empty spec
// yields DefaultTargets.
func ParseTargets(spec string) ([]Target, error) {
	fields := lo.Compact(lo.Map(strings.Split(spec, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
	if len(fields) == 0 {
		return DefaultTargets, nil
	}
	targets := make([]Target, 0, len(fields))
	for _, field := range fields {
		goos, goarch, ok := strings.Cut(field, "/")
		if !ok || goos == "" || goarch == "" {
			return nil, fmt.Errorf("invalid target %q: want goos/goarch", field)
		}
		targets = append(targets, Target{GOOS: goos, GOARCH: goarch})
	}
	return lo.Uniq(targets), nil
}

// BuildArtifacts compiles every target, packs it with the docs and writes
// SHA256SUMS. Artifacts come back sorted by archive name.
func BuildArtifacts(ctx context.Context, opts Options) ([]Artifact, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	build := opts.Builder
	if build == nil {
		build = GoBuild
	}
	targets := opts.Targets
	if len(targets) == 0 {
		targets = DefaultTargets
	}

	repoRoot, err := filepath.Abs(opts.RepoRoot)
	if err != nil {
		return nil, fmt.Errorf("repo root %s: %w", opts.RepoRoot, err)
	}
	outDir, err := filepath.Abs(opts.OutDir)
	if err != nil {
		return nil, fmt.Errorf("out dir %s: %w", opts.OutDir, err)
	}
	if err := fs.RemoveAll(outDir); err != nil {
		return nil, fmt.Errorf("reset %s: %w", outDir, err)
	}
	stageRoot := filepath.Join(outDir, stageDirName)
	if err := fs.MkdirAll(stageRoot, 0o755); err != nil {
		return nil, fmt.Errorf("stage %s: %w", stageRoot, err)
	}
	defer fs.RemoveAll(stageRoot)

	ldflags := fmt.Sprintf("-s -w -X %s=%s", versionSymbol, opts.Version)
	artifacts := make([]Artifact, 0, len(targets))
	for _, target := range targets {
		stage := filepath.Join(stageRoot, packageDirName(opts.Version, target))
		if err := fs.MkdirAll(stage, 0o755); err != nil {
			return nil, fmt.Errorf("stage %s: %w", target, err)
		}
		if err := build(ctx, Build{
			RepoRoot: repoRoot,
			Target:   target,
			Output:   filepath.Join(stage, binaryName(target.GOOS)),
			LDFlags:  ldflags,
		}); err != nil {
			return nil, err
		}
		if err := copyDocs(fs, repoRoot, stage, opts.Docs); err != nil {
			return nil, err
		}

		artifact := Artifact{
			Target:         target,
			ArchiveName:    archiveName(opts.Version, target),
			PackageDirName: filepath.Base(stage),
		}
		artifact.ArchivePath = filepath.Join(outDir, artifact.ArchiveName)
		if err := writeArchive(fs, artifact.ArchivePath, stage, target.GOOS == "windows"); err != nil {
			return nil, fmt.Errorf("pack %s: %w", artifact.ArchiveName, err)
		}
		opts.Logger.Info().Str("target", target.String()).Str("archive", artifact.ArchiveName).Msg("release_artifact_built")
		artifacts = append(artifacts, artifact)
	}

	slices.SortFunc(artifacts, func(a, b Artifact) int {
		return strings.Compare(a.ArchiveName, b.ArchiveName)
	})
	if err := writeChecksums(fs, outDir, artifacts); err != nil {
		return nil, err
	}
	return artifacts, nil
}

func (o Options) validate() error {
	required := []struct{ name, value string }{
		{"out dir", o.OutDir},
		{"repo root", o.RepoRoot},
		{"version", o.Version},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%s is required", field.name)
		}
	}
	return nil
}

// GoBuild runs the go toolchain with cgo disabled. It writes to the real
// filesystem, so it only pairs with an OS-backed Options.Fs.
func GoBuild(ctx context.Context, b Build) error {
	args := []string{"build", "-trimpath", "-ldflags", b.LDFlags, "-o", b.Output, "."}
	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Dir = b.RepoRoot
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=0",
		"GOOS="+b.Target.GOOS,
		"GOARCH="+b.Target.GOARCH,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("go build %s failed: %w: %s", b.Target, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func packageDirName(version string, target Target) string {
	return fmt.Sprintf("%s_%s_%s_%s", appName, version, target.GOOS, target.GOARCH)
}

func archiveName(version string, target Target) string {
	if target.GOOS == "windows" {
		return packageDirName(version, target) + ".zip"
	}
	return packageDirName(version, target) + ".tar.gz"
}

func binaryName(goos string) string {
	if goos == "windows" {
		return appName + ".exe"
	}
	return appName
}

func copyDocs(fs afero.Fs, repoRoot, pkgDir string, docs []string) error {
	for _, doc := range docs {
		src := filepath.Join(repoRoot, doc)
		dst := filepath.Join(pkgDir, filepath.Base(doc))
		if err := copyFile(fs, src, dst); err != nil {
			return fmt.Errorf("copy %s: %w", doc, err)
		}
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	data, err := afero.ReadFile(fs, src)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, dst, data, 0o644)
}

// archiveWriter adds one package entry; src is nil for directories.
type archiveWriter interface {
	add(name string, info os.FileInfo, src io.Reader) error
	io.Closer
}

type tarArchive struct {
	gz *gzip.Writer
	tw *tar.Writer
}

func newTarArchive(w io.Writer) *tarArchive {
	gz := gzip.NewWriter(w)
	return &tarArchive{gz: gz, tw: tar.NewWriter(gz)}
}

func (a *tarArchive) add(name string, info os.FileInfo, src io.Reader) error {
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := a.tw.WriteHeader(hdr); err != nil {
		return err
	}
	if src == nil {
		return nil
	}
	_, err = io.Copy(a.tw, src)
	return err
}

func (a *tarArchive) Close() error {
	return errors.Join(a.tw.Close(), a.gz.Close())
}

type zipArchive struct {
	zw *zip.Writer
}

func (a *zipArchive) add(name string, info os.FileInfo, src io.Reader) error {
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name
	if src != nil {
		hdr.Method = zip.Deflate
	}
	w, err := a.zw.CreateHeader(hdr)
	if err != nil || src == nil {
		return err
	}
	_, err = io.Copy(w, src)
	return err
}

func (a *zipArchive) Close() error {
	return a.zw.Close()
}

// writeArchive packs dir so that it unpacks into a single top-level
// directory named after dir.
func writeArchive(fs afero.Fs, path, dir string, useZip bool) (err error) {
	file, err := fs.Create(path)
	if err != nil {
		return err
	}
	var archive archiveWriter
	if useZip {
		archive = &zipArchive{zw: zip.NewWriter(file)}
	} else {
		archive = newTarArchive(file)
	}
	defer func() {
		err = errors.Join(err, archive.Close(), file.Close())
	}()

	parent := filepath.Dir(dir)
	return afero.Walk(fs, dir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		if info.IsDir() {
			return archive.add(name+"/", info, nil)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		src, err := fs.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		return archive.add(name, info, src)
	})
}

// writeChecksums writes sha256sum-compatible lines in artifact order.
func writeChecksums(fs afero.Fs, outDir string, artifacts []Artifact) error {
	var b strings.Builder
	for _, artifact := range artifacts {
		f, err := fs.Open(artifact.ArchivePath)
		if err != nil {
			return fmt.Errorf("checksum %s: %w", artifact.ArchiveName, err)
		}
		h := sha256.New()
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return fmt.Errorf("checksum %s: %w", artifact.ArchiveName, err)
		}
		fmt.Fprintf(&b, "%x  %s\n", h.Sum(nil), artifact.ArchiveName)
	}
	if err := afero.WriteFile(fs, filepath.Join(outDir, checksumFile), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", checksumFile, err)
	}
	return nil
}
