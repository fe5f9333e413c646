package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mameikagou/compoder/internal/auth"
	"github.com/mameikagou/compoder/internal/codegen"
	"github.com/mameikagou/compoder/internal/models"
)

// sseSink streams generation events to the client as newline-delimited JSON
// over a text/event-stream response, flushing after every event.
type sseSink struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

func newSSESink(w http.ResponseWriter) (*sseSink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseSink{writer: w, flusher: flusher}, nil
}

func (s *sseSink) Write(event codegen.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if _, err := s.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("client disconnected: %w", err)
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Close() error {
	s.flusher.Flush()
	return nil
}

// GenerateRequest represents a streaming component generation request
type GenerateRequest struct {
	CodegenID string              `json:"codegenId" binding:"required,uuid"`
	Prompt    []models.PromptPart `json:"prompt" binding:"required,min=1,dive"`
	Model     string              `json:"model" binding:"required"`
	Provider  string              `json:"provider" binding:"required"`
	// ComponentID targets an existing component for the edit flow.
	ComponentID string `json:"componentId" binding:"omitempty,uuid"`
}

// CreateComponent godoc
// @Summary Generate a new component
// @Description Stream AI-generated component code as newline-delimited JSON events
// @Tags componentCode
// @Accept json
// @Produce text/event-stream
// @Param request body GenerateRequest true "Generation request"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/create [post]
func (h *Handler) CreateComponent(c *gin.Context) {
	h.runGeneration(c, false)
}

// EditComponent godoc
// @Summary Edit an existing component
// @Description Stream AI-edited component code; stores results as new versions of the target component
// @Tags componentCode
// @Accept json
// @Produce text/event-stream
// @Param request body GenerateRequest true "Generation request with componentId"
// @Success 200 {string} string "event stream"
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/edit [post]
func (h *Handler) EditComponent(c *gin.Context) {
	h.runGeneration(c, true)
}

func (h *Handler) runGeneration(c *gin.Context, edit bool) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}
	if edit && req.ComponentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameter: componentId"})
		return
	}

	userID, err := auth.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	genReq := codegen.GenerationRequest{
		UserID:    userID,
		CodegenID: uuid.MustParse(req.CodegenID),
		Prompt:    req.Prompt,
		Model:     req.Model,
		Provider:  req.Provider,
	}
	if edit {
		genReq.ComponentID = uuid.MustParse(req.ComponentID)
	}

	sink, err := newSSESink(c.Writer)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	result := h.workflow.Run(c.Request.Context(), genReq, sink)
	log.Printf(`{"level":"info","message":"Generation run finished","user_id":"%s","codegen_id":"%s","status":"%s","stored":%d,"partial":%t}`,
		userID, req.CodegenID, result.Status, result.Stored, result.Partial)
}
