package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pagelift/pagelift/internal/pipeline"
	"github.com/pagelift/pagelift/pkg/document"
	"github.com/pagelift/pagelift/pkg/logging"
)

var (
	processURL    string
	processFormat string
	processOut    string
	processNoImgs bool
)

var processCmd = &cobra.Command{
	Use:   "process [file]",
	Short: "Process one document and emit its markdown",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.GetLogger("process")

		if len(args) == 0 && processURL == "" {
			return fmt.Errorf("provide a file argument or --url")
		}

		svc, err := buildServices(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.settings.Close()

		var in pipeline.Input
		if len(args) > 0 {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			in = pipeline.Input{
				Bytes:    data,
				Filename: filepath.Base(args[0]),
				MIME:     mimeForPath(args[0], data),
			}
		} else {
			dl, err := svc.fetcher.Download(cmd.Context(), processURL)
			if err != nil {
				return err
			}
			in = pipeline.Input{Bytes: dl.Bytes, Filename: dl.Filename, MIME: dl.MIME}
		}

		format := document.ExportFormat(processFormat)
		if format != document.ExportLinked {
			format = document.ExportEmbedded
		}

		result, err := svc.pipeline.Process(cmd.Context(), in, document.Options{
			IncludeImages: !processNoImgs,
			ExportFormat:  format,
		})
		if err != nil {
			return err
		}

		log.Info().
			Int("pages", len(result.Pages)).
			Int("mismatches", result.TotalMismatches()).
			Str("record_handle", result.RecordHandle).
			Msg("Document processed")

		if processOut == "" || processOut == "-" {
			fmt.Fprintln(cmd.OutOrStdout(), result.RenderedMarkdown)
			return nil
		}
		return os.WriteFile(processOut, []byte(result.RenderedMarkdown), 0o644)
	},
}

func init() {
	processCmd.Flags().StringVar(&processURL, "url", "", "process the document at this URL instead of a local file")
	processCmd.Flags().StringVar(&processFormat, "format", string(document.ExportEmbedded), "export format: embedded or linked")
	processCmd.Flags().StringVarP(&processOut, "out", "o", "", "write markdown to this file instead of stdout")
	processCmd.Flags().BoolVar(&processNoImgs, "no-images", false, "skip inline image payloads from the OCR service")
}

func mimeForPath(p string, data []byte) string {
	if len(data) >= 4 && string(data[:4]) == "%PDF" {
		return "application/pdf"
	}
	switch strings.ToLower(filepath.Ext(p)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".webp":
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
