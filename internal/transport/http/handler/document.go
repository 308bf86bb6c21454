package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"pdfchat/internal/app"
	"pdfchat/internal/model"
	"pdfchat/internal/transport/http/response"
)

type DocumentService interface {
	Ingest(ctx context.Context, input app.IngestInput) (*app.IngestResult, error)
	List(ctx context.Context, userID string) ([]model.Document, error)
	Delete(ctx context.Context, documentID string) error
}

type DocumentHandler struct {
	documents DocumentService
	maxBytes  int64
}

func NewDocumentHandler(documents DocumentService, maxUploadMB int) *DocumentHandler {
	if maxUploadMB <= 0 {
		maxUploadMB = 20
	}
	return &DocumentHandler{
		documents: documents,
		maxBytes:  int64(maxUploadMB) << 20,
	}
}

type uploadResponse struct {
	Success bool `json:"success"`
	*app.IngestResult
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest, "missing file field")
		return
	}
	if fh.Size > h.maxBytes {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest,
			fmt.Sprintf("file exceeds %d MB", h.maxBytes>>20))
		return
	}

	f, err := fh.Open()
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest, "unreadable file")
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxBytes))
	if err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, response.MessageInvalidRequest, "unreadable file")
		return
	}

	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}
	userID, _ := identity(c)
	result, err := h.documents.Ingest(c.Request.Context(), app.IngestInput{
		DocumentID: c.PostForm("documentId"),
		Name:       name,
		Data:       data,
		UserID:     userID,
	})
	if err != nil {
		writeError(c, err, "ingest document")
		return
	}

	response.OK(c, uploadResponse{Success: true, IngestResult: result})
}

func (h *DocumentHandler) List(c *gin.Context) {
	userID, _ := identity(c)
	docs, err := h.documents.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err, "list documents")
		return
	}
	if docs == nil {
		docs = []model.Document{}
	}
	response.OK(c, gin.H{"documents": docs})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err, "delete document")
		return
	}
	response.OK(c, gin.H{"success": true, "documentId": id})
}
