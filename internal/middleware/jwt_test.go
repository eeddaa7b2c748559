package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/school-ops-api/internal/models"
	"github.com/noah-isme/school-ops-api/internal/service"
)

const testTokenSecret = "optional-jwt-test-secret"

func newTokenValidator(t *testing.T) *service.AuthService {
	t.Helper()
	return service.NewAuthService(nil, nil, nil, zap.NewNop(), service.AuthConfig{
		AccessTokenSecret: testTokenSecret,
		AccessTokenExpiry: time.Minute,
	})
}

func signTestToken(t *testing.T, userID, schoolID string) string {
	t.Helper()
	now := time.Now().UTC()
	claims := &models.JWTClaims{
		UserID:   userID,
		SchoolID: schoolID,
		Role:     models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testTokenSecret))
	require.NoError(t, err)
	return signed
}

func optionalJWTRouter(t *testing.T, captured **models.JWTClaims) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/applications", OptionalJWT(newTokenValidator(t)), func(c *gin.Context) {
		if value, ok := c.Get(ContextUserKey); ok {
			*captured = value.(*models.JWTClaims)
		}
		c.JSON(http.StatusCreated, gin.H{"data": "ok"})
	})
	return r
}

func TestOptionalJWTAttachesClaimsWhenPresent(t *testing.T) {
	var captured *models.JWTClaims
	r := optionalJWTRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/applications", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "admin-1", "school-1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "admin-1", captured.UserID)
	assert.Equal(t, "school-1", captured.SchoolID)
}

func TestOptionalJWTPassesAnonymousRequests(t *testing.T) {
	var captured *models.JWTClaims
	r := optionalJWTRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/applications", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, captured)
}

func TestOptionalJWTIgnoresInvalidTokens(t *testing.T) {
	var captured *models.JWTClaims
	r := optionalJWTRouter(t, &captured)

	req := httptest.NewRequest(http.MethodPost, "/applications", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Nil(t, captured)
}
