package httpapi

import (
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

type documentHandler struct {
	ingest   driving.IngestService
	docs     driving.DocumentService
	maxBytes int64
}

func newDocumentHandler(ingest driving.IngestService, docs driving.DocumentService, maxBytes int64) *documentHandler {
	return &documentHandler{ingest: ingest, docs: docs, maxBytes: maxBytes}
}

// Upload ingests the multipart "file" field.
func (h *documentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": errorBody{
				Kind:    domain.KindInvalidInput,
				Message: "upload exceeds " + strconv.FormatInt(h.maxBytes, 10) + " bytes",
			}})
			return
		}
		badRequest(c, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		badRequest(c, "reading upload: "+err.Error())
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), domain.Upload{
		Filename: header.Filename,
		Content:  content,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	logger.Info("ingested %s as %s (%d chunks)", result.Filename, result.DocumentID, result.ChunksIndexed)
	status := http.StatusCreated
	if result.Replaced {
		status = http.StatusOK
	}
	c.JSON(status, toUploadResponse(result))
}

// List returns documents newest first.
func (h *documentHandler) List(c *gin.Context) {
	includeMeta := false
	if raw := c.Query("include_meta"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "include_meta must be a boolean")
			return
		}
		includeMeta = v
	}

	docs, err := h.docs.List(c.Request.Context(), includeMeta)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]documentResponse, len(docs))
	for i := range docs {
		out[i] = toDocumentResponse(&docs[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *documentHandler) Get(c *gin.Context) {
	doc, err := h.docs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDocumentResponse(doc))
}

func (h *documentHandler) Update(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	if _, err := h.docs.Update(c.Request.Context(), c.Param("id"), req.toPatch()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *documentHandler) Delete(c *gin.Context) {
	if err := h.docs.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Download streams the original upload as an attachment.
func (h *documentHandler) Download(c *gin.Context) {
	rc, doc, err := h.docs.Open(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})
	c.DataFromReader(http.StatusOK, -1, "application/pdf", rc, map[string]string{
		"Content-Disposition": disposition,
	})
}
