package gateway

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/mameikagou/compoder/internal/auth"
	"github.com/mameikagou/compoder/internal/codegen"
	"github.com/mameikagou/compoder/internal/models"
	"github.com/mameikagou/compoder/internal/store"
)

// Handler handles HTTP requests for the gateway layer
type Handler struct {
	store      *store.ComponentStore
	workflow   *codegen.Workflow
	jwtManager *auth.JWTManager
	pool       *pgxpool.Pool
}

// NewHandler creates a new gateway handler
func NewHandler(componentStore *store.ComponentStore, workflow *codegen.Workflow, jwtManager *auth.JWTManager, pool *pgxpool.Pool) *Handler {
	return &Handler{
		store:      componentStore,
		workflow:   workflow,
		jwtManager: jwtManager,
		pool:       pool,
	}
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Token string          `json:"token"`
	User  models.UserInfo `json:"user"`
}

// Login godoc
// @Summary User login
// @Description Authenticate user and return JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User
	err := h.pool.QueryRow(c.Request.Context(),
		`SELECT id, name, email, hashed_password, created_at FROM users WHERE email = $1`,
		req.Email,
	).Scan(&user.ID, &user.Name, &user.Email, &user.HashedPassword, &user.CreatedAt)
	if err != nil {
		log.Printf(`{"level":"warn","message":"User not found","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(req.Password)); err != nil {
		log.Printf(`{"level":"warn","message":"Invalid password","email":"%s"}`, req.Email)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	token, err := h.jwtManager.GenerateToken(
		c.Request.Context(),
		user.ID.String(),
		user.Email,
		[]string{"user"},
		24*time.Hour,
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token: token,
		User:  user.ToUserInfo(),
	})
}

// ListComponentsResponse represents a component list response
type ListComponentsResponse struct {
	Data  []models.ComponentSummary `json:"data"`
	Total int                       `json:"total"`
}

// ListComponents godoc
// @Summary List component codes
// @Description List a codegen's components with pagination and search
// @Tags componentCode
// @Produce json
// @Param codegenId query string true "Codegen ID"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(10)
// @Param searchKeyword query string false "Search keyword"
// @Param filterField query string false "Filter field" Enums(all, name, description)
// @Success 200 {object} ListComponentsResponse
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/list [get]
func (h *Handler) ListComponents(c *gin.Context) {
	codegenID, ok := h.uuidQuery(c, "codegenId")
	if !ok {
		return
	}

	var query struct {
		Page          int    `form:"page,default=1"`
		PageSize      int    `form:"pageSize,default=10"`
		SearchKeyword string `form:"searchKeyword"`
		FilterField   string `form:"filterField,default=all"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters"})
		return
	}

	items, total, err := h.store.ListComponents(c.Request.Context(), codegenID,
		query.Page, query.PageSize, query.SearchKeyword, query.FilterField)
	if err != nil {
		log.Printf(`{"level":"error","message":"Failed to list components","codegen_id":"%s","error":"%v"}`, codegenID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch component codes"})
		return
	}

	if items == nil {
		items = []models.ComponentSummary{}
	}
	c.JSON(http.StatusOK, ListComponentsResponse{Data: items, Total: total})
}

// GetComponentDetail godoc
// @Summary Get component code detail
// @Description Get a component with its full version history
// @Tags componentCode
// @Produce json
// @Param id query string true "Component ID"
// @Param codegenId query string true "Codegen ID"
// @Success 200 {object} models.ComponentCode
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/detail [get]
func (h *Handler) GetComponentDetail(c *gin.Context) {
	componentID, ok := h.uuidQuery(c, "id")
	if !ok {
		return
	}
	codegenID, ok := h.uuidQuery(c, "codegenId")
	if !ok {
		return
	}

	component, err := h.store.GetComponent(c.Request.Context(), componentID, codegenID)
	if err != nil {
		h.respondStoreError(c, err, "Failed to fetch component code details")
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": component})
}

// AddVersionRequest represents a direct (non-AI) version append
type AddVersionRequest struct {
	ComponentCodeID string              `json:"componentCodeId" binding:"required,uuid"`
	Prompt          []models.PromptPart `json:"prompt" binding:"required,min=1,dive"`
	Code            string              `json:"code" binding:"required"`
}

// AddVersion godoc
// @Summary Add a component code version
// @Description Append a version with caller-provided code, without invoking the model
// @Tags componentCode
// @Accept json
// @Produce json
// @Param request body AddVersionRequest true "Version payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/addVersion [post]
func (h *Handler) AddVersion(c *gin.Context) {
	var req AddVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters"})
		return
	}

	componentID := uuid.MustParse(req.ComponentCodeID)
	version, err := h.store.AppendVersion(c.Request.Context(), componentID, req.Prompt, req.Code)
	if err != nil {
		h.respondStoreError(c, err, "Failed to add component code version")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "version": version})
}

// UpdateMetadataRequest represents a metadata update
type UpdateMetadataRequest struct {
	ID          string  `json:"id" binding:"required,uuid"`
	CodegenID   string  `json:"codegenId" binding:"required,uuid"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// UpdateMetadata godoc
// @Summary Update component code metadata
// @Description Update a component's name and/or description
// @Tags componentCode
// @Accept json
// @Produce json
// @Param request body UpdateMetadataRequest true "Metadata payload"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/update [put]
func (h *Handler) UpdateMetadata(c *gin.Context) {
	var req UpdateMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required parameters: id or codegenId"})
		return
	}

	component, err := h.store.UpdateMetadata(c.Request.Context(),
		uuid.MustParse(req.ID), uuid.MustParse(req.CodegenID), req.Name, req.Description)
	if err != nil {
		h.respondStoreError(c, err, "Failed to update component code")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": component})
}

// DeleteComponent godoc
// @Summary Delete component code
// @Description Hard-delete a component and its entire version history
// @Tags componentCode
// @Param id query string true "Component ID"
// @Param codegenId query string true "Codegen ID"
// @Success 204
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /componentCode/delete [delete]
func (h *Handler) DeleteComponent(c *gin.Context) {
	componentID, ok := h.uuidQuery(c, "id")
	if !ok {
		return
	}
	codegenID, ok := h.uuidQuery(c, "codegenId")
	if !ok {
		return
	}

	if err := h.store.DeleteComponent(c.Request.Context(), componentID, codegenID); err != nil {
		h.respondStoreError(c, err, "Failed to delete component code")
		return
	}

	c.Status(http.StatusNoContent)
}

// uuidQuery parses a required UUID query parameter, responding 400 itself
// when the parameter is missing or malformed.
func (h *Handler) uuidQuery(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Missing required parameter: " + name,
			Code:  models.ErrCodeInvalidRequest,
		})
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Invalid " + name,
			Code:  models.ErrCodeInvalidRequest,
		})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) respondStoreError(c *gin.Context, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Component code not found",
			Code:  models.ErrCodeComponentNotFound,
		})
		return
	}
	log.Printf(`{"level":"error","message":"%s","error":"%v"}`, message, err)
	c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error: message,
		Code:  models.ErrCodeInternalError,
	})
}
