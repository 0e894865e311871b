package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/markdave123-py/Contexta-knowledge/internal/core"
	"github.com/markdave123-py/Contexta-knowledge/internal/core/ingestion_engine"
)

var (
	errInvalidRequest = errors.New("invalid request")
	errMissingFile    = errors.New("no file provided")
	errFileTooLarge   = errors.New("file too large")
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err and replies with its status. Details of unexpected
// failures are logged and replaced by a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("code", code).Msg("request failed")
	} else {
		hlog.FromRequest(r).Debug().Err(err).Str("code", code).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func classify(err error) (int, string, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, "VALIDATION_FAILED", describe(verrs)
	case errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST", err.Error()
	case errors.Is(err, errMissingFile):
		return http.StatusBadRequest, "MISSING_FILE", err.Error()
	case errors.Is(err, errFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error()
	case errors.Is(err, ingestion_engine.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", ingestion_engine.ErrUnsupportedFormat.Error()
	case errors.Is(err, ingestion_engine.ErrEmptyText):
		return http.StatusBadRequest, "EMPTY_TEXT", ingestion_engine.ErrEmptyText.Error()
	case errors.Is(err, ingestion_engine.ErrInvalidBatch):
		return http.StatusBadRequest, "INVALID_BATCH", err.Error()
	case errors.Is(err, ingestion_engine.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", ingestion_engine.ErrSessionNotFound.Error()
	case errors.Is(err, ingestion_engine.ErrSessionClosed):
		return http.StatusConflict, "SESSION_CLOSED", err.Error()
	case errors.Is(err, ingestion_engine.ErrDocumentExists):
		return http.StatusConflict, "DOCUMENT_EXISTS", err.Error()
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, ingestion_engine.ErrEmbeddingTimeout):
		return http.StatusInternalServerError, "EMBEDDING_TIMEOUT", ingestion_engine.ErrEmbeddingTimeout.Error()
	case errors.Is(err, ingestion_engine.ErrArchiveFailed):
		return http.StatusInternalServerError, "ARCHIVE_FAILED", ingestion_engine.ErrArchiveFailed.Error()
	}
	return http.StatusInternalServerError, "INTERNAL", "internal server error"
}

func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// decodeJSON reads a JSON body into dst and runs its validate tags.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return validate.Struct(dst)
}
