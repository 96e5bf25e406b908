package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/snapdoc/snapdoc/pkg/cleanup"
	"github.com/snapdoc/snapdoc/pkg/config"
	"github.com/snapdoc/snapdoc/pkg/handshake"
	"github.com/snapdoc/snapdoc/pkg/logger"
	"github.com/snapdoc/snapdoc/pkg/manifest"
	"github.com/snapdoc/snapdoc/pkg/pdf"
	"github.com/snapdoc/snapdoc/pkg/processor"
	"github.com/snapdoc/snapdoc/pkg/sequencer"
	"github.com/snapdoc/snapdoc/pkg/utils"
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".webp", ".gif"}

// Service owns one batch at a time: await the marker, process every image,
// sequence, assemble, clean up.
type Service struct {
	uploadRoot     string
	outputRoot     string
	pipeline       *processor.Pipeline
	pollInterval   time.Duration
	awaitTimeout   time.Duration
	maxOutputBytes int64
	author         string
	previewEnabled bool
}

func NewService(cfg *config.Config) (*Service, error) {
	outputRoot := filepath.Join(cfg.DataPath(), "outputs")
	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return nil, fmt.Errorf("create output root: %w", err)
	}

	var seg processor.Segmenter
	if cfg.Processing.SegmenterURL != "" {
		seg = processor.NewHTTPSegmenter(cfg.Processing.SegmenterURL)
	}
	pipeline := processor.NewPipeline(processor.Options{
		Segmenter:      seg,
		TargetLongEdge: cfg.Processing.TargetLongEdge,
		JPEGQuality:    cfg.Processing.JPEGQuality,
	})

	return &Service{
		uploadRoot:     cfg.UploadPath(),
		outputRoot:     outputRoot,
		pipeline:       pipeline,
		pollInterval:   cfg.ReadyPollInterval(),
		awaitTimeout:   cfg.ReadyTimeout(),
		maxOutputBytes: cfg.MaxOutputBytes(),
		author:         cfg.Output.DocumentAuthor,
		previewEnabled: cfg.Output.PreviewEnabled,
	}, nil
}

// OutputRoot is where finished documents land.
func (s *Service) OutputRoot() string {
	return s.outputRoot
}

// ProcessBatch runs the full batch lifecycle and never returns a Go error:
// every failure is folded into the response as a taxonomy code.
func (s *Service) ProcessBatch(ctx context.Context, req Request) Response {
	start := time.Now()
	resp := s.run(ctx, req)
	resp.DurationMS = time.Since(start).Milliseconds()
	observeBatch(resp)

	if resp.Success {
		logger.InfoCF("worker", "Batch delivered", map[string]interface{}{
			"user":        req.UserKey,
			"pages":       resp.PageCount,
			"size":        resp.FileSize,
			"ordering":    resp.Ordering,
			"duration_ms": resp.DurationMS,
		})
	} else {
		logger.WarnCF("worker", "Batch failed", map[string]interface{}{
			"user":        req.UserKey,
			"error":       resp.Error,
			"duration_ms": resp.DurationMS,
		})
	}
	return resp
}

func (s *Service) run(ctx context.Context, req Request) Response {
	dir, err := s.resolveDir(req.ImageDir)
	if err != nil {
		return s.failure(req, err)
	}

	marker, err := handshake.Await(ctx, dir, s.pollInterval, s.awaitTimeout)
	if err != nil {
		return s.failure(req, err)
	}

	names, err := enumerateImages(dir, marker.Count)
	if err != nil {
		return s.failure(req, err)
	}
	if len(names) == 0 {
		return s.failure(req, fmt.Errorf("%w: no images on disk", processor.ErrBatchUnrecoverable))
	}

	man := manifest.Load(dir)
	pages := make([]sequencer.Page, 0, len(names))
	for i, name := range names {
		p := sequencer.Page{
			Path:         filepath.Join(dir, name),
			StoredName:   name,
			SeqNo:        i + 1,
			OriginalName: name,
		}
		if e, ok := man.Lookup(name); ok {
			if e.OriginalName != "" {
				p.OriginalName = e.OriginalName
			}
			if e.SeqNo > 0 {
				p.SeqNo = e.SeqNo
			}
		}
		p.CaptureTime = sequencer.CaptureTimeOf(p.Path)
		pages = append(pages, p)
	}
	ordered, rule := sequencer.Order(pages)

	var docPages []pdf.Page
	var notes []string
	for _, pg := range ordered {
		if ctx.Err() != nil {
			return s.failure(req, ctx.Err())
		}
		data, err := os.ReadFile(pg.Path)
		if err == nil {
			var proc processor.Processed
			proc, err = s.pipeline.Process(ctx, data, pg.StoredName)
			if err == nil {
				docPages = append(docPages, pdf.Page{Name: pg.StoredName, JPEG: proc.JPEG})
				continue
			}
		}
		pagesSkipped.Inc()
		notes = append(notes, fmt.Sprintf("%s could not be processed and was skipped", pg.OriginalName))
		logger.WarnCF("worker", "Image skipped", map[string]interface{}{
			"user":  req.UserKey,
			"image": pg.StoredName,
			"error": err.Error(),
		})
	}
	if len(docPages) == 0 {
		return s.failure(req, fmt.Errorf("%w: every image in the batch failed", processor.ErrBatchUnrecoverable))
	}

	outPath := filepath.Join(s.outputRoot,
		fmt.Sprintf("%s_%s.pdf", req.UserKey, time.Now().UTC().Format("20060102_150405")))
	meta := pdf.Meta{
		Title:   fmt.Sprintf("Scanned document (%d pages)", len(docPages)),
		Author:  s.author,
		Subject: fmt.Sprintf("Assembled from %d uploaded images", len(names)),
		Created: time.Now(),
	}
	res, err := pdf.Assemble(docPages, outPath, meta, s.maxOutputBytes)
	if err != nil {
		return s.failure(req, err)
	}

	previewPath := ""
	if s.previewEnabled {
		if data, perr := pdf.Preview(res.Path); perr == nil {
			candidate := res.Path + ".preview.jpg"
			if werr := os.WriteFile(candidate, data, 0644); werr == nil {
				previewPath = candidate
			}
		} else {
			logger.WarnCF("worker", "Preview skipped", map[string]interface{}{
				"path":  res.Path,
				"error": perr.Error(),
			})
		}
	}

	// Output is safe on disk; now the batch can go. A failed cleanup is the
	// janitor's problem, not the user's.
	if err := cleanup.Batch(dir, marker.Token, names); err != nil {
		logger.WarnCF("worker", "Batch cleanup incomplete", map[string]interface{}{
			"dir":   dir,
			"error": err.Error(),
		})
	}

	return Response{
		Success:     true,
		PDFPath:     res.Path,
		PreviewPath: previewPath,
		PageCount:   res.PageCount,
		FileSize:    utils.FormatBytes(res.Size),
		SizeBytes:   res.Size,
		Ordering:    string(rule),
		Notes:       notes,
	}
}

func (s *Service) failure(req Request, err error) Response {
	logger.ErrorCF("worker", "Batch aborted", map[string]interface{}{
		"user":  req.UserKey,
		"dir":   req.ImageDir,
		"error": err.Error(),
	})
	return Response{Success: false, Error: CodeForError(err)}
}

// resolveDir pins the requested directory under the upload root so a
// malformed request cannot point the worker anywhere else.
func (s *Service) resolveDir(dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("%w: empty image dir", ErrInternal)
	}
	p := dir
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.uploadRoot, p)
	}
	p = filepath.Clean(p)
	root := filepath.Clean(s.uploadRoot)
	if p != root && !strings.HasPrefix(p, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: image dir escapes upload root", ErrInternal)
	}
	return p, nil
}

// enumerateImages lists the batch contents. A positive count came from the
// marker and closes the batch: only slots 1..count are considered, so
// images that keep arriving mid-processing wait for the next batch. A bare
// marker means the batch is whatever img_ files are on disk.
func enumerateImages(dir string, count int) ([]string, error) {
	if count > 0 {
		names := make([]string, 0, count)
		for i := 1; i <= count; i++ {
			for _, ext := range imageExts {
				name := fmt.Sprintf("img_%03d%s", i, ext)
				if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
					names = append(names, name)
					break
				}
			}
		}
		return names, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read batch dir: %v", ErrInternal, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "img_") {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, known := range imageExts {
			if ext == known {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}
