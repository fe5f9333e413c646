package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-key-for-unit-tests")
	manager, err := NewJWTManager()
	require.NoError(t, err)
	return manager
}

func TestNewJWTManager(t *testing.T) {
	t.Run("missing secret fails", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := NewJWTManager()
		assert.Error(t, err)
	})

	t.Run("secret from environment", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "some-secret")
		manager, err := NewJWTManager()
		require.NoError(t, err)
		assert.NotNil(t, manager)
	})
}

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New().String()

	t.Run("round trip", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := manager.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
		assert.Equal(t, "alice@example.com", claims.Username)
		assert.Equal(t, []string{"user"}, claims.Roles)
		assert.Equal(t, "compoder-api", claims.Issuer)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "alice@example.com", []string{"user"}, -time.Minute)
		require.NoError(t, err)

		_, err = manager.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := manager.ValidateToken(ctx, "not.a.token")
		assert.Error(t, err)
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		t.Setenv("JWT_SECRET", "a-completely-different-secret")
		other, err := NewJWTManager()
		require.NoError(t, err)

		_, err = other.ValidateToken(ctx, token)
		assert.Error(t, err)
	})
}

func TestJWTManager_RefreshToken(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New().String()

	t.Run("refresh keeps identity", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "bob@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		refreshed, err := manager.RefreshToken(ctx, token, 2*time.Hour)
		require.NoError(t, err)

		claims, err := manager.ValidateToken(ctx, refreshed)
		require.NoError(t, err)
		assert.Equal(t, userID, claims.UserID)
	})

	t.Run("cannot refresh invalid token", func(t *testing.T) {
		_, err := manager.RefreshToken(ctx, "bogus", time.Hour)
		assert.Error(t, err)
	})
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := newTestManager(t)
	ctx := context.Background()
	userID := uuid.New().String()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.GET("/protected", RequireAuth(manager), func(c *gin.Context) {
			current, err := CurrentUser(c)
			require.NoError(t, err)
			c.JSON(http.StatusOK, gin.H{"user_id": current.String()})
		})
		return router
	}

	t.Run("valid bearer token passes", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), userID)
	})

	t.Run("token query parameter passes", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, userID, "alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing token is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer invalid-token")
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager := newTestManager(t)
	ctx := context.Background()

	newRouter := func() *gin.Engine {
		router := gin.New()
		router.GET("/admin", RequireAuth(manager), RequireRole("admin"), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		return router
	}

	t.Run("user with role passes", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, uuid.New().String(), "root@example.com", []string{"user", "admin"}, time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("user without role is forbidden", func(t *testing.T) {
		token, err := manager.GenerateToken(ctx, uuid.New().String(), "alice@example.com", []string{"user"}, time.Hour)
		require.NoError(t, err)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		newRouter().ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
