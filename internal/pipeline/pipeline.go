package pipeline

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/fetch"
	"github.com/pagelift/pagelift/internal/markdown"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/resolve"
	"github.com/pagelift/pagelift/internal/storage"
	"github.com/pagelift/pagelift/pkg/document"
	"github.com/pagelift/pagelift/pkg/logging"
)

// OCRService is the recognition dependency. Satisfied by *ocr.Client;
// tests substitute fakes.
type OCRService interface {
	ProcessWithRetry(ctx context.Context, content []byte, filename string, includeImages bool) (*ocr.Response, error)
	ProcessURLWithRetry(ctx context.Context, documentURL string, includeImages bool) (*ocr.Response, error)
}

// Archiver commits final artifacts to long-term storage. Optional;
// satisfied by *storage.GitArchive.
type Archiver interface {
	Archive(ctx context.Context, name string, data []byte) (string, error)
}

// Input is one source document handed to the pipeline. Either Bytes
// (with Filename and MIME) or URL must be set.
type Input struct {
	Bytes    []byte
	Filename string
	MIME     string
	URL      string
}

// Pipeline runs the full document flow: recognize, resolve every
// image slot, rewrite page markdown, render the combined document and
// persist the artifacts. A returned Result is always complete; on
// error no partial result is exposed.
type Pipeline struct {
	ocr      OCRService
	resolver *resolve.Engine
	store    storage.ArtifactStore
	archive  Archiver
	log      zerolog.Logger
}

// New builds a pipeline. archive may be nil to skip long-term
// archiving.
func New(ocrSvc OCRService, resolver *resolve.Engine, store storage.ArtifactStore, archive Archiver) *Pipeline {
	return &Pipeline{
		ocr:      ocrSvc,
		resolver: resolver,
		store:    store,
		archive:  archive,
		log:      logging.GetLogger("pipeline"),
	}
}

// Process runs one document end to end.
func (p *Pipeline) Process(ctx context.Context, in Input, opts document.Options) (*document.Result, error) {
	documentID := uuid.New().String()[:8]
	log := logging.GetPipelineLogger(documentID, "process")

	resp, err := p.recognize(ctx, in, opts)
	if err != nil {
		return nil, err
	}

	pages := resp.ToPages()
	log.Info().Int("pages", len(pages)).Str("model", resp.Model).Msg("Recognition complete")

	p.resolver.ResolvePages(ctx, documentID, pages, in.Bytes, in.MIME)
	for _, page := range pages {
		markdown.Rewrite(page)
	}

	format := opts.ExportFormat
	if format == "" {
		format = document.ExportEmbedded
	}

	result := &document.Result{
		DocumentURL:      resp.DocumentURL,
		Pages:            pages,
		RenderedMarkdown: markdown.RenderDocument(pages, format),
	}

	if err := p.persist(ctx, documentID, result); err != nil {
		return nil, err
	}

	if format == document.ExportEmbedded {
		p.cleanupImageArtifacts(ctx, log, pages)
	}

	if n := result.TotalMismatches(); n > 0 {
		log.Warn().Int("mismatches", n).Msg("Document finished with unbound image links")
	}
	log.Info().
		Str("markdown_handle", result.MarkdownHandle).
		Str("record_handle", result.RecordHandle).
		Msg("Document processed")
	return result, nil
}

func (p *Pipeline) recognize(ctx context.Context, in Input, opts document.Options) (*ocr.Response, error) {
	if in.URL != "" && len(in.Bytes) == 0 {
		return p.ocr.ProcessURLWithRetry(ctx, in.URL, opts.IncludeImages)
	}
	if len(in.Bytes) == 0 {
		return nil, &fetch.UnsupportedInput{Detail: "neither document bytes nor a url provided"}
	}
	filename := in.Filename
	if filename == "" {
		filename = "document"
	}
	return p.ocr.ProcessWithRetry(ctx, in.Bytes, filename, opts.IncludeImages)
}

// persist writes the final markdown and the structured JSON record.
// Either write failing aborts the call; the caller gets no result.
func (p *Pipeline) persist(ctx context.Context, documentID string, result *document.Result) error {
	mdName := documentID + ".md"
	mdHandle, err := p.store.Put(ctx, mdName, []byte(result.RenderedMarkdown))
	if err != nil {
		return asPersistence("put", mdName, err)
	}
	result.MarkdownHandle = mdHandle

	record, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return &storage.PersistenceError{Op: "encode", Name: documentID + ".json", Err: err}
	}
	recordName := documentID + ".json"
	recordHandle, err := p.store.Put(ctx, recordName, record)
	if err != nil {
		return asPersistence("put", recordName, err)
	}
	result.RecordHandle = recordHandle

	if p.archive != nil {
		if _, err := p.archive.Archive(ctx, mdName, []byte(result.RenderedMarkdown)); err != nil {
			p.log.Warn().Err(err).Str("name", mdName).Msg("Archive commit failed")
		}
	}
	return nil
}

// asPersistence keeps store-raised persistence errors as-is and wraps
// anything else.
func asPersistence(op, name string, err error) error {
	var perr *storage.PersistenceError
	if errors.As(err, &perr) {
		return perr
	}
	return &storage.PersistenceError{Op: op, Name: name, Err: err}
}

// cleanupImageArtifacts removes per-image store entries once their
// bytes are embedded in the rendered document. Best effort; the
// record's handles for these assets become historical.
func (p *Pipeline) cleanupImageArtifacts(ctx context.Context, log zerolog.Logger, pages []*document.Page) {
	for _, page := range pages {
		for _, ref := range page.Images {
			if ref.Handle == "" {
				continue
			}
			if err := p.store.Delete(ctx, ref.Handle); err != nil {
				log.Debug().Err(err).Str("handle", ref.Handle).Msg("Image artifact cleanup failed")
			}
		}
	}
}
