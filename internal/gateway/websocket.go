package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mameikagou/compoder/internal/auth"
	"github.com/mameikagou/compoder/internal/codegen"
)

var wsTracer = otel.Tracer("websocket-generate")

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking for production
		return true
	},
}

// wsSink streams generation events to a WebSocket client, one JSON text
// message per event. Close sends a normal close frame.
type wsSink struct {
	conn *websocket.Conn
}

func (s *wsSink) Write(event codegen.StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal stream event: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("client connection write error: %w", err)
	}
	return nil
}

func (s *wsSink) Close() error {
	return s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// GenerateOverWebSocket handles GET /api/ws/componentCode/generate
// @Summary Stream component generation over WebSocket
// @Description WebSocket endpoint: the client sends one generation request message, the server streams generation events back
// @Tags componentCode
// @Param token query string true "JWT token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]string
// @Security BearerAuth
// @Router /ws/componentCode/generate [get]
func (h *Handler) GenerateOverWebSocket(c *gin.Context) {
	ctx, span := wsTracer.Start(c.Request.Context(), "websocket.generate")
	defer span.End()

	userID, err := auth.CurrentUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	span.SetAttributes(attribute.String("user.id", userID.String()))

	clientConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		log.Printf("Failed to upgrade connection: %v", err)
		return
	}
	defer clientConn.Close()

	log.Printf("WebSocket connection upgraded for user_id: %s", userID)

	// The first client message carries the generation request.
	_, message, err := clientConn.ReadMessage()
	if err != nil {
		span.RecordError(err)
		log.Printf("Client connection read error: %v", err)
		return
	}

	var req GenerateRequest
	if err := json.Unmarshal(message, &req); err != nil {
		span.RecordError(err)
		s := &wsSink{conn: clientConn}
		s.Write(codegen.ErrorEvent("invalid generation request"))
		s.Close()
		return
	}

	codegenID, err := uuid.Parse(req.CodegenID)
	if err != nil || req.Model == "" || req.Provider == "" || len(req.Prompt) == 0 {
		s := &wsSink{conn: clientConn}
		s.Write(codegen.ErrorEvent("invalid generation request"))
		s.Close()
		return
	}

	genReq := codegen.GenerationRequest{
		UserID:    userID,
		CodegenID: codegenID,
		Prompt:    req.Prompt,
		Model:     req.Model,
		Provider:  req.Provider,
	}
	if req.ComponentID != "" {
		componentID, err := uuid.Parse(req.ComponentID)
		if err != nil {
			s := &wsSink{conn: clientConn}
			s.Write(codegen.ErrorEvent("invalid componentId"))
			s.Close()
			return
		}
		genReq.ComponentID = componentID
	}

	span.SetAttributes(
		attribute.String("codegen.id", req.CodegenID),
		attribute.String("gen_ai.request.model", req.Model),
	)

	// Drain client messages so ping/pong and close frames are processed
	// while the run streams.
	go func() {
		for {
			if _, _, err := clientConn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	result := h.workflow.Run(ctx, genReq, &wsSink{conn: clientConn})
	log.Printf("WebSocket generation finished for user_id: %s, status: %s, stored: %d", userID, result.Status, result.Stored)
}
