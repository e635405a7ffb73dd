package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/orconsole/server/internal/ai"
	"github.com/orconsole/server/internal/apierr"
	"github.com/orconsole/server/internal/console"
	"github.com/orconsole/server/internal/docs"
	"github.com/orconsole/server/internal/httpapi/middleware"
	"github.com/orconsole/server/internal/sse"
)

func (h *Handler) UploadDocument(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		fail(c, apierr.BadRequest(apierr.CodeMissingFilename, "No filename provided", nil))
		return
	}
	if strings.TrimSpace(file.Filename) == "" {
		fail(c, apierr.BadRequest(apierr.CodeMissingFilename, "No filename provided", nil))
		return
	}
	if !docs.AllowedExtension(file.Filename) {
		fail(c, apierr.BadRequest(apierr.CodeValidationError,
			"Invalid file type. Allowed extensions: "+strings.Join(docs.AllowedExtensions(), ", "), nil))
		return
	}
	if file.Size > docs.MaxUploadSize {
		fail(c, apierr.BadRequest(apierr.CodeValidationError,
			fmt.Sprintf("File too large. Maximum size is %d MB", docs.MaxUploadSize/(1<<20)), nil))
		return
	}

	f, err := file.Open()
	if err != nil {
		fail(c, apierr.Internal(apierr.CodeFileSaveFailed, "Failed to save file"))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, docs.MaxUploadSize+1))
	if err != nil || len(content) > docs.MaxUploadSize {
		fail(c, apierr.BadRequest(apierr.CodeValidationError,
			fmt.Sprintf("File too large. Maximum size is %d MB", docs.MaxUploadSize/(1<<20)), nil))
		return
	}

	doc, err := h.Docs.Save(file.Filename, content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListDocuments(c *gin.Context) {
	documents, err := h.Docs.List()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": documents, "total": len(documents)})
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	id := c.Param("id")
	if err := h.Docs.Delete(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully", "id": id})
}

type documentQAReq struct {
	Question    string   `json:"question" binding:"required"`
	ModelID     string   `json:"model_id" binding:"required"`
	SessionID   *string  `json:"session_id"`
	ProfileID   *int64   `json:"profile_id"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

// DocumentQA streams an answer grounded in an uploaded document. Without a
// session_id it creates a documents session titled after the file. The
// document context and question go upstream only; the stored user turn
// carries a [Document:<id>] prefix instead of the full content.
func (h *Handler) DocumentQA(c *gin.Context) {
	var req documentQAReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apierr.BadRequest(apierr.CodeValidationError, "invalid qa payload: "+err.Error(), nil))
		return
	}
	docID := c.Param("id")

	doc, err := h.Docs.Load(docID)
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	var sessionID string
	if req.SessionID != nil && *req.SessionID != "" {
		s, err := h.Repo.GetSession(ctx, *req.SessionID)
		if err != nil {
			fail(c, err)
			return
		}
		sessionID = s.ID
	} else {
		s, err := h.Repo.CreateSession(ctx, console.SessionInput{
			SessionType: console.SessionDocuments,
			Title:       &doc.Name,
			ProfileID:   req.ProfileID,
		})
		if err != nil {
			fail(c, err)
			return
		}
		sessionID = s.ID
	}

	documentContext := fmt.Sprintf(
		"You are assisting with questions about the uploaded document '%s'.\n\n"+
			"Document content:\n%s\n\n"+
			"Always answer using only the document content. If the answer is not present, say you don't have enough information.",
		doc.Name, doc.Content)

	requestID := middleware.GetRequestID(c)
	sseHeaders(c)
	w := sse.NewWriter(c.Writer)

	plan, apiErr := h.Pipeline.Preflight(ctx, console.StreamRequest{
		SessionID:   sessionID,
		ModelID:     req.ModelID,
		ProfileID:   req.ProfileID,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		ExtraMessages: []ai.Message{
			{Role: console.RoleSystem, Content: documentContext},
			{Role: console.RoleUser, Content: req.Question},
		},
	})
	if apiErr != nil {
		_ = w.Send(sse.EventError, apiErr.StreamEnvelope(requestID))
		return
	}
	plan.StartExtra = map[string]any{"document_id": docID}

	// The persisted turn references the document instead of embedding it.
	if _, err := h.Repo.AddMessage(ctx, sessionID, console.RoleUser,
		fmt.Sprintf("[Document:%s] %s", docID, req.Question)); err != nil {
		_ = w.Send(sse.EventError, apierr.From(err).StreamEnvelope(requestID))
		return
	}

	h.Pipeline.Run(ctx, plan, w, requestID)
}
