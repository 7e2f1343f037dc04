package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/fetch"
	"github.com/pagelift/pagelift/internal/markdown"
	"github.com/pagelift/pagelift/internal/ocr"
	"github.com/pagelift/pagelift/internal/pdfimages"
	"github.com/pagelift/pagelift/internal/pipeline"
	"github.com/pagelift/pagelift/internal/settings"
	"github.com/pagelift/pagelift/internal/storage"
	"github.com/pagelift/pagelift/pkg/document"
	"github.com/pagelift/pagelift/pkg/logging"
)

// Processor runs a document through the pipeline.
type Processor interface {
	Process(ctx context.Context, in pipeline.Input, opts document.Options) (*document.Result, error)
}

// Downloader fetches source documents by URL.
type Downloader interface {
	Download(ctx context.Context, url string) (*fetch.Downloaded, error)
}

// AccessChecker probes vendor API availability.
type AccessChecker interface {
	CheckAccess(ctx context.Context) error
}

// Sketcher renders best-effort page layout previews for the
// compare-original view.
type Sketcher interface {
	RenderPageSketches(ctx context.Context, content []byte) []pdfimages.PageSketch
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	cfg      *config.Config
	pipeline Processor
	fetcher  Downloader
	checker  AccessChecker
	sketcher Sketcher
	store    storage.ArtifactStore
	settings settings.Store
	log      zerolog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(cfg *config.Config, p Processor, f Downloader, checker AccessChecker, sketcher Sketcher, store storage.ArtifactStore, st settings.Store) *Handlers {
	return &Handlers{
		cfg:      cfg,
		pipeline: p,
		fetcher:  f,
		checker:  checker,
		sketcher: sketcher,
		store:    store,
		settings: st,
		log:      logging.GetLogger("api"),
	}
}

// Health returns the service health status.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": "pagelift",
		"version": "0.1.0",
	})
}

// Status reports vendor API reachability and whether demo mode is on.
func (h *Handlers) Status(c *fiber.Ctx) error {
	apiAccess := true
	var detail string
	if err := h.checker.CheckAccess(c.Context()); err != nil {
		apiAccess = false
		detail = err.Error()
	}
	return c.JSON(fiber.Map{
		"status":     "ok",
		"api_access": apiAccess,
		"demo_mode":  h.cfg.UseDemoOCR,
		"detail":     detail,
	})
}

// ProcessDocument accepts a multipart file upload or a url form field
// and runs the full pipeline.
func (h *Handlers) ProcessDocument(c *fiber.Ctx) error {
	opts := h.optionsFrom(c)

	in, err := h.inputFrom(c)
	if err != nil {
		return failWith(c, err)
	}

	result, err := h.pipeline.Process(c.Context(), in, opts)
	if err != nil {
		return failWith(c, err)
	}

	return c.JSON(fiber.Map{
		"status":     "ok",
		"result":     result,
		"markdown":   result.RenderedMarkdown,
		"mismatches": result.TotalMismatches(),
	})
}

// GetMarkdown processes the document at url and returns the rendered
// markdown as text.
func (h *Handlers) GetMarkdown(c *fiber.Ctx) error {
	result, err := h.processURL(c)
	if err != nil {
		return failWith(c, err)
	}
	c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
	return c.SendString(result.RenderedMarkdown)
}

// GetJSON processes the document at url and returns the structured
// record.
func (h *Handlers) GetJSON(c *fiber.Ctx) error {
	result, err := h.processURL(c)
	if err != nil {
		return failWith(c, err)
	}
	return c.JSON(result)
}

// GetPreview processes the document at url and returns an HTML
// rendering of the markdown.
func (h *Handlers) GetPreview(c *fiber.Ctx) error {
	result, err := h.processURL(c)
	if err != nil {
		return failWith(c, err)
	}
	html, err := markdown.RenderHTMLPreview(result.RenderedMarkdown)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "preview rendering failed")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(html)
}

// Sketches renders per-page layout previews for an uploaded PDF:
// its embedded images composited at their placed positions. Used by
// the side-by-side comparison view.
func (h *Handlers) Sketches(c *fiber.Ctx) error {
	in, err := h.inputFrom(c)
	if err != nil {
		return failWith(c, err)
	}
	sketches := h.sketcher.RenderPageSketches(c.Context(), in.Bytes)

	type sketchOut struct {
		Index  int    `json:"index"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
		PNG    []byte `json:"png_base64"`
	}
	out := make([]sketchOut, 0, len(sketches))
	for _, s := range sketches {
		out = append(out, sketchOut{Index: s.Index, Width: s.Width, Height: s.Height, PNG: s.PNG})
	}
	return c.JSON(fiber.Map{"status": "ok", "pages": out})
}

// ServeFile returns a stored artifact by handle.
func (h *Handlers) ServeFile(c *fiber.Ctx) error {
	handle := c.Params("handle")
	data, err := h.store.Get(c.Context(), handle)
	if err != nil {
		return fail(c, fiber.StatusNotFound, "artifact not found")
	}
	c.Set(fiber.HeaderContentType, contentTypeFor(handle))
	return c.Send(data)
}

// GetSettings lists all stored settings.
func (h *Handlers) GetSettings(c *fiber.Ctx) error {
	all, err := h.settings.All(c.Context())
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "settings unavailable")
	}
	return c.JSON(fiber.Map{"status": "ok", "settings": all})
}

// PutSettings applies a batch of key/value updates.
func (h *Handlers) PutSettings(c *fiber.Ctx) error {
	var updates map[string]string
	if err := c.BodyParser(&updates); err != nil || len(updates) == 0 {
		return fail(c, fiber.StatusBadRequest, "body must be a non-empty object of string settings")
	}
	for k, v := range updates {
		if err := h.settings.Set(c.Context(), k, v); err != nil {
			return fail(c, fiber.StatusInternalServerError, "failed to store setting "+k)
		}
	}
	return c.JSON(fiber.Map{"status": "ok", "updated": len(updates)})
}

// GetSettingsHistory lists recent changes for one key.
func (h *Handlers) GetSettingsHistory(c *fiber.Ctx) error {
	key := c.Query("key")
	if key == "" {
		return fail(c, fiber.StatusBadRequest, "key query parameter is required")
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	changes, err := h.settings.History(c.Context(), key, limit)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "history unavailable")
	}
	return c.JSON(fiber.Map{"status": "ok", "history": changes})
}

func (h *Handlers) processURL(c *fiber.Ctx) (*document.Result, error) {
	rawURL := c.Query("url")
	if rawURL == "" {
		return nil, fiber.NewError(fiber.StatusBadRequest, "url query parameter is required")
	}
	dl, err := h.fetcher.Download(c.Context(), rawURL)
	if err != nil {
		return nil, err
	}
	return h.pipeline.Process(c.Context(), pipeline.Input{
		Bytes:    dl.Bytes,
		Filename: dl.Filename,
		MIME:     dl.MIME,
	}, h.optionsFrom(c))
}

func (h *Handlers) optionsFrom(c *fiber.Ctx) document.Options {
	format := document.ExportFormat(c.FormValue("format", c.Query("format", string(h.cfg.DefaultExportFormat))))
	if format != document.ExportLinked {
		format = document.ExportEmbedded
	}
	include := true
	if v := c.FormValue("include_images", c.Query("include_images")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			include = parsed
		}
	}
	return document.Options{IncludeImages: include, ExportFormat: format}
}

func (h *Handlers) inputFrom(c *fiber.Ctx) (pipeline.Input, error) {
	if fileHeader, err := c.FormFile("file"); err == nil {
		f, err := fileHeader.Open()
		if err != nil {
			return pipeline.Input{}, fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, h.cfg.MaxUploadBytes+1))
		if err != nil {
			return pipeline.Input{}, fiber.NewError(fiber.StatusBadRequest, "unreadable upload")
		}
		if int64(len(data)) > h.cfg.MaxUploadBytes {
			return pipeline.Input{}, fiber.NewError(fiber.StatusRequestEntityTooLarge, "upload exceeds size limit")
		}
		mimeType := fileHeader.Header.Get("Content-Type")
		if !fetch.AcceptableMIME(mimeType) && mimeType != "" && mimeType != "application/octet-stream" {
			return pipeline.Input{}, &fetch.UnsupportedInput{Detail: "content type " + strconv.Quote(mimeType)}
		}
		return pipeline.Input{Bytes: data, Filename: fileHeader.Filename, MIME: mimeType}, nil
	}

	if rawURL := c.FormValue("url"); rawURL != "" {
		dl, err := h.fetcher.Download(c.Context(), rawURL)
		if err != nil {
			return pipeline.Input{}, err
		}
		return pipeline.Input{Bytes: dl.Bytes, Filename: dl.Filename, MIME: dl.MIME}, nil
	}

	return pipeline.Input{}, fiber.NewError(fiber.StatusBadRequest, "provide a file upload or a url field")
}

// failWith maps pipeline error types onto HTTP statuses with the
// uniform error body.
func failWith(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fail(c, fiberErr.Code, fiberErr.Message)
	}
	var unsupported *fetch.UnsupportedInput
	if errors.As(err, &unsupported) {
		return fail(c, fiber.StatusUnsupportedMediaType, unsupported.Error())
	}
	var dlErr *fetch.DownloadError
	if errors.As(err, &dlErr) {
		return fail(c, fiber.StatusBadGateway, dlErr.Error())
	}
	var apiErr *ocr.APIError
	if errors.As(err, &apiErr) {
		return fail(c, fiber.StatusBadGateway, "ocr service: "+apiErr.Message)
	}
	var perr *storage.PersistenceError
	if errors.As(err, &perr) {
		return fail(c, fiber.StatusInternalServerError, "artifact persistence failed")
	}
	return fail(c, fiber.StatusInternalServerError, err.Error())
}

func fail(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{
		"status":  "error",
		"message": message,
	})
}

func contentTypeFor(handle string) string {
	if ct := mime.TypeByExtension(filepath.Ext(handle)); ct != "" {
		return ct
	}
	switch filepath.Ext(handle) {
	case ".md":
		return "text/markdown; charset=utf-8"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
