// Package staticsite builds static-framework deployments host-side and
// publishes the output tree to blob storage.
package staticsite

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"log/slog"

	"github.com/DhruvWebDev/Deploify/internal/binding"
	"github.com/DhruvWebDev/Deploify/internal/blob"
	"github.com/DhruvWebDev/Deploify/internal/contenttype"
	"github.com/DhruvWebDev/Deploify/internal/domain"
	"github.com/DhruvWebDev/Deploify/internal/git"
	"github.com/DhruvWebDev/Deploify/internal/provision"
	"github.com/DhruvWebDev/Deploify/internal/workspace"
)

// ManifestKey is the route manifest object name under a deployment's storage
// root.
const ManifestKey = "routes.json"

// Builder runs the clone -> install -> build -> upload pipeline for static
// frameworks and registers a STATIC_ARTIFACT subdomain binding.
type Builder struct {
	workspace *workspace.Manager
	blobs     blob.Store
	bindings  binding.Store
	sink      provision.LogSink
	logger    *slog.Logger
}

// New constructs a Builder.
func New(ws *workspace.Manager, blobs blob.Store, bindings binding.Store, sink provision.LogSink, logger *slog.Logger) *Builder {
	return &Builder{workspace: ws, blobs: blobs, bindings: bindings, sink: sink, logger: logger}
}

// Deploy builds the project and uploads its output tree under the deployment
// id prefix. The STATIC_ARTIFACT binding's endpoint is that storage root.
func (b *Builder) Deploy(ctx context.Context, req provision.Request) error {
	dir, err := b.workspace.Prepare(req.DeploymentID)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.workspace.Cleanup(dir); err != nil {
			b.logger.Warn("workspace cleanup failed", "deployment_id", req.DeploymentID, "error", err)
		}
	}()

	b.sink.Publish(ctx, req.DeploymentID, "cloning repository")
	if err := git.Clone(ctx, req.SourceRef, dir); err != nil {
		return err
	}

	if err := b.writeEnvFile(dir, req.EnvVars); err != nil {
		return err
	}

	for _, command := range append(append([]string{}, req.Framework.Install...), req.Framework.Build...) {
		b.sink.Publish(ctx, req.DeploymentID, "running: "+command)
		if err := b.run(ctx, req.DeploymentID, dir, command); err != nil {
			return err
		}
	}

	outputDir := filepath.Join(dir, req.Framework.OutputDir)
	if _, err := os.Stat(outputDir); err != nil {
		return fmt.Errorf("build output folder %q not found: %w", req.Framework.OutputDir, err)
	}

	uploaded, err := b.upload(ctx, req.DeploymentID, outputDir)
	if err != nil {
		return err
	}
	if err := b.writeManifest(ctx, req.DeploymentID, uploaded); err != nil {
		return err
	}

	if err := b.bindings.Put(ctx, domain.SubdomainBinding{
		Subdomain:   req.Subdomain,
		BackingKind: domain.BackingStaticArtifact,
		Endpoint:    req.DeploymentID,
	}); err != nil {
		return err
	}

	b.sink.Publish(ctx, req.DeploymentID, fmt.Sprintf("uploaded %d files successfully", len(uploaded)))
	return nil
}

func (b *Builder) writeEnvFile(dir string, envVars map[string]string) error {
	if len(envVars) == 0 {
		return nil
	}
	keys := make([]string, 0, len(envVars))
	for k := range envVars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s=%s\n", k, envVars[k])
	}
	return os.WriteFile(filepath.Join(dir, ".env"), buf.Bytes(), 0o644)
}

func (b *Builder) run(ctx context.Context, deploymentID, dir, command string) error {
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %q: %w", command, err)
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		b.sink.Publish(ctx, deploymentID, scanner.Text())
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("command %q failed: %w", command, err)
	}
	return nil
}

// upload walks the output tree and stores every file under the deployment
// prefix, returning the uploaded relative paths.
func (b *Builder) upload(ctx context.Context, deploymentID, outputDir string) ([]string, error) {
	var uploaded []string
	err := filepath.WalkDir(outputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		key := deploymentID + "/" + rel
		if err := b.blobs.Put(ctx, key, f, contenttype.FromPath(rel)); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		uploaded = append(uploaded, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(uploaded) == 0 {
		return nil, fmt.Errorf("build produced no files to upload")
	}
	return uploaded, nil
}

// writeManifest publishes the route manifest: request paths mapped to object
// keys relative to the storage root, with "/" as the default entry.
func (b *Builder) writeManifest(ctx context.Context, deploymentID string, files []string) error {
	manifest := BuildManifest(files)
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	key := deploymentID + "/" + ManifestKey
	return b.blobs.Put(ctx, key, bytes.NewReader(payload), "application/json")
}

// BuildManifest maps request paths to relative file keys. Every file is
// reachable by its literal path; HTML files additionally get clean routes
// ("about/index.html" -> "/about", "index.html" -> "/").
func BuildManifest(files []string) map[string]string {
	manifest := make(map[string]string, len(files))
	for _, f := range files {
		manifest["/"+f] = f
		if !strings.HasSuffix(f, ".html") {
			continue
		}
		switch {
		case f == "index.html":
			manifest["/"] = f
		case strings.HasSuffix(f, "/index.html"):
			manifest["/"+strings.TrimSuffix(f, "/index.html")] = f
		default:
			manifest["/"+strings.TrimSuffix(f, ".html")] = f
		}
	}
	return manifest
}
