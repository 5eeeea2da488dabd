package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cadencefi/treasuryd/internal/domain"
)

// archiveKinds are the export prefixes the archive endpoints expose.
var archiveKinds = map[string]bool{
	"liquidations": true,
	"harvests":     true,
}

// ArchiveHandler serves the cold-storage archive listing and download
// endpoints.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logHandler(logger, "archives"),
	}
}

// ListArchives returns metadata for stored archive files, optionally filtered
// by kind.
// GET /api/archives?kind=liquidations
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := "archive/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if !archiveKinds[kind] {
			writeError(w, http.StatusBadRequest, "unknown archive kind "+kind)
			return
		}
		prefix += kind + "/"
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list archives failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, map[string]any{
			"path":          info.Path,
			"size":          info.Size,
			"last_modified": info.LastModified.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

// GetArchive streams one archive file back to the client.
// GET /api/archives/{kind}/{file}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	kind := pathParam(r, "kind")
	file := pathParam(r, "file")
	if !archiveKinds[kind] {
		writeError(w, http.StatusBadRequest, "unknown archive kind "+kind)
		return
	}
	if file == "" || strings.ContainsAny(file, "/\\") {
		writeError(w, http.StatusBadRequest, "invalid archive file name")
		return
	}

	path := "archive/" + kind + "/" + file
	body, err := h.reader.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get archive failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("error", err.Error()))
	}
}
