package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yungbote/neurobridge-studygen/internal/platform/ctxutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/pipeline"
	"github.com/yungbote/neurobridge-studygen/internal/studygen/records"
)

const resultSuffix = ".studygen.json"

type Processor interface {
	ProcessDocument(ctx context.Context, content string, tasks []records.Task, opts pipeline.CallOptions) records.ProcessResult
}

type Options struct {
	Dir        string
	OutDir     string
	Extensions []string
}

// Inbox processes every watched file in Dir and writes the result to
// OutDir/<name>.studygen.json. A file whose result is newer than the file
// itself is skipped.
type Inbox struct {
	proc   Processor
	dir    string
	outDir string
	exts   []string
	log    *logger.Logger
}

func New(proc Processor, opts Options, log *logger.Logger) *Inbox {
	out := opts.OutDir
	if out == "" {
		out = opts.Dir
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".txt", ".md"}
	}
	return &Inbox{
		proc:   proc,
		dir:    opts.Dir,
		outDir: out,
		exts:   exts,
		log:    logger.OrNop(log).With("component", "inbox", "dir", opts.Dir),
	}
}

// ResultPath is where the result for the document at path is written.
func (in *Inbox) ResultPath(path string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(in.outDir, name+resultSuffix)
}

// Run scans Dir for documents already present, then handles files from
// the watcher until ctx ends.
func (in *Inbox) Run(ctx context.Context, w *Watcher) error {
	if err := os.MkdirAll(in.outDir, 0o755); err != nil {
		return fmt.Errorf("inbox: create out dir: %w", err)
	}
	paths, err := w.Watch(ctx, in.dir)
	if err != nil {
		return fmt.Errorf("inbox: watch %s: %w", in.dir, err)
	}
	in.log.Info("inbox watching", "out_dir", in.outDir, "extensions", in.exts)

	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("inbox: scan %s: %w", in.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !hasExtension(e.Name(), in.exts) {
			continue
		}
		in.handleLogged(ctx, filepath.Join(in.dir, e.Name()))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			in.handleLogged(ctx, p)
		}
	}
}

func (in *Inbox) handleLogged(ctx context.Context, path string) {
	if err := in.Handle(ctx, path); err != nil {
		in.log.Warn("inbox document failed", "path", path, "error", err)
	}
}

// Handle processes one document. Up-to-date results are left alone.
func (in *Inbox) Handle(ctx context.Context, path string) error {
	src, err := os.Stat(path)
	if err != nil {
		return err
	}
	if src.IsDir() {
		return nil
	}
	dst := in.ResultPath(path)
	if out, err := os.Stat(dst); err == nil && !out.ModTime().Before(src.ModTime()) {
		in.log.Debug("result up to date", "path", path)
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	ctx = ctxutil.WithTraceData(ctx, &ctxutil.TraceData{JobID: "inbox:" + name})
	res := in.proc.ProcessDocument(ctx, string(raw), nil, pipeline.CallOptions{SourceName: name})

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(dst, b); err != nil {
		return err
	}
	in.log.Info("inbox document processed", "path", path, "result", dst, "success", res.Success, "summary", res.Summary)
	return nil
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".studygen-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
