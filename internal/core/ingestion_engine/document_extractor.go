package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/models"
)

const (
	MimePDF  = "application/pdf"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText = "text/plain"
)

var _ core.DocumentExtractor = (*DocumentTextExtractor)(nil)

// DocumentTextExtractor turns PDF, DOCX and plain text uploads into normalized text.
// PDFs go through a fast structural parse first and fall back to the vision model
// when that yields too little text or fails.
type DocumentTextExtractor struct {
	vision        core.VisionExtractor
	minChars      int
	visionTimeout time.Duration

	readPDF func(data []byte) (string, error)
}

// NewDocumentTextExtractor builds an extractor. vision may be nil, in which case
// low-yield PDFs are rejected as unreadable.
func NewDocumentTextExtractor(vision core.VisionExtractor, minChars int, visionTimeout time.Duration) *DocumentTextExtractor {
	if minChars <= 0 {
		minChars = 50
	}
	if visionTimeout <= 0 {
		visionTimeout = 90 * time.Second
	}
	return &DocumentTextExtractor{
		vision:        vision,
		minChars:      minChars,
		visionTimeout: visionTimeout,
		readPDF:       readPDFText,
	}
}

// ResolveContentType strips parameters from the declared type and, when the client
// sent nothing useful, infers it from the file extension.
func ResolveContentType(declared, fileName string) string {
	ct := strings.TrimSpace(declared)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	ct = strings.ToLower(ct)
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".docx":
		return MimeDOCX
	case ".txt":
		return MimeText
	}
	return ct
}

func IsSupported(contentType string) bool {
	switch contentType {
	case MimePDF, MimeDOCX, MimeText:
		return true
	}
	return false
}

// NormalizeText collapses every Unicode whitespace run (NBSP, em space, \v included)
// into one space and trims the result.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (e *DocumentTextExtractor) ExtractText(ctx context.Context, doc *models.Document) (*core.ExtractedText, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: no document", ErrInvalidBatch)
	}
	ct := ResolveContentType(doc.ContentType, doc.Name)

	var (
		raw      string
		strategy string
		err      error
	)
	switch ct {
	case MimeText:
		raw, strategy = strings.ToValidUTF8(string(doc.Content), ""), "utf8"
	case MimeDOCX:
		raw, _, err = docconv.ConvertDocx(bytes.NewReader(doc.Content))
		if err != nil {
			return nil, fmt.Errorf("read docx %q: %w", doc.Name, err)
		}
		strategy = "docx"
	case MimePDF:
		raw, strategy, err = e.extractPDF(ctx, doc)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w (got %q)", ErrUnsupportedFormat, doc.ContentType)
	}

	text := NormalizeText(raw)
	if utf8.RuneCountInString(text) < e.minChars {
		return nil, ErrEmptyText
	}

	log.Info().
		Str("document", doc.Name).
		Str("strategy", strategy).
		Int("chars", utf8.RuneCountInString(text)).
		Msg("extractor: text extracted")

	return &core.ExtractedText{
		Text: text,
		Metadata: map[string]string{
			"content_type": ct,
			"strategy":     strategy,
		},
	}, nil
}

func (e *DocumentTextExtractor) extractPDF(ctx context.Context, doc *models.Document) (string, string, error) {
	text, parseErr := e.readPDF(doc.Content)
	if parseErr == nil && utf8.RuneCountInString(NormalizeText(text)) >= e.minChars {
		return text, "pdf-text", nil
	}

	if e.vision == nil {
		if parseErr != nil {
			return "", "", fmt.Errorf("could not extract text from pdf %q: %w", doc.Name, parseErr)
		}
		return text, "pdf-text", nil
	}

	if parseErr != nil {
		log.Warn().Err(parseErr).Str("document", doc.Name).Msg("extractor: pdf parse failed, trying vision model")
	} else {
		log.Warn().Str("document", doc.Name).Int("chars", len(text)).Msg("extractor: low text yield, trying vision model")
	}
	pdfFallbacks.Inc()

	vctx, cancel := context.WithTimeout(ctx, e.visionTimeout)
	defer cancel()

	out, err := e.vision.TranscribeDocument(vctx, doc.Name, MimePDF, doc.Content)
	if err != nil {
		if parseErr != nil {
			return "", "", fmt.Errorf("could not extract text from pdf %q: %w", doc.Name, parseErr)
		}
		return "", "", fmt.Errorf("vision fallback for %q: %w", doc.Name, err)
	}
	return out, "vision", nil
}

// readPDFText joins the plain text of every non-empty page with blank lines.
func readPDFText(data []byte) (text string, err error) {
	// ledongthuc/pdf panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		t, err := p.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		if t = strings.TrimSpace(t); t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n\n"), nil
}
