package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/workbench-backend/internal/domain"
	"github.com/yungbote/workbench-backend/internal/http/response"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/filestore"
	"github.com/yungbote/workbench-backend/internal/services"
)

type FileHandler struct {
	files services.FileService
}

func NewFileHandler(files services.FileService) *FileHandler {
	return &FileHandler{files: files}
}

// GET /files/:category
func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), c.Param("category"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if files == nil {
		files = []domain.File{}
	}
	response.RespondOK(c, gin.H{"files": files})
}

// GET /file/:category/:name
func (h *FileHandler) Read(c *gin.Context) {
	data, err := h.files.Read(c.Request.Context(), c.Param("category"), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"content": string(data)})
}

// POST /file (multipart, field "file")
func (h *FileHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondAPIError(c, apierr.BadRequest(apierr.CodeMissingField, fmt.Errorf("multipart field %q is required", "file")))
		return
	}
	if fh.Size > filestore.MaxFileBytes {
		response.RespondAPIError(c, apierr.Newf(http.StatusRequestEntityTooLarge, apierr.CodeInvalidRequest, "file exceeds %d bytes", filestore.MaxFileBytes))
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.RespondAPIError(c, apierr.Filesystem(err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, filestore.MaxFileBytes+1))
	if err != nil {
		response.RespondAPIError(c, apierr.Filesystem(err))
		return
	}
	stored, err := h.files.Stage(c.Request.Context(), fh.Filename, data)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "File staged", "name": stored})
}

// GET /files_staged
func (h *FileHandler) Staged(c *gin.Context) {
	names, err := h.files.Staged(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	response.RespondOK(c, gin.H{"files": names})
}

// DELETE /file/:id
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"message": "File deleted"})
}
