package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-testing"

func TestGenerateJWT_Success(t *testing.T) {
	token, err := New(testSecret, 0).GenerateJWT("user-123", "test@example.com", false)

	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 3, len(strings.Split(token, ".")), "JWT should have 3 parts")
}

func TestGenerateJWT_MissingSecret(t *testing.T) {
	_, err := New("", 0).GenerateJWT("user-123", "test@example.com", false)

	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestValidateJWT_ValidToken(t *testing.T) {
	a := New(testSecret, 0)

	token, err := a.GenerateJWT("user-123", "test@example.com", true)
	require.NoError(t, err)

	claims, err := a.ValidateJWT(token)

	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserID)
	assert.Equal(t, "test@example.com", claims.Email)
	assert.True(t, claims.IsAdmin)
}

func TestValidateJWT_ExpiredToken(t *testing.T) {
	claims := Claims{
		UserID: "user-123",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = New(testSecret, 0).ValidateJWT(tokenString)
	assert.Error(t, err, "expired token should be rejected")
}

func TestValidateJWT_TamperedToken(t *testing.T) {
	a := New(testSecret, 0)

	token, err := a.GenerateJWT("user-123", "test@example.com", false)
	require.NoError(t, err)

	_, err = a.ValidateJWT(token[:len(token)-5] + "XXXXX")
	assert.Error(t, err, "tampered token should be rejected")
}

func TestValidateJWT_WrongSecret(t *testing.T) {
	token, err := New(testSecret, 0).GenerateJWT("user-123", "test@example.com", false)
	require.NoError(t, err)

	_, err = New("different-secret-key", 0).ValidateJWT(token)
	assert.Error(t, err, "token signed with different secret should be rejected")
}

func TestValidateJWT_AlgorithmConfusionAttack(t *testing.T) {
	claims := Claims{
		UserID:  "attacker",
		IsAdmin: true,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}

	tokenString, _ := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType) //nolint:errcheck // test code

	_, err := New(testSecret, 0).ValidateJWT(tokenString)
	assert.Error(t, err, "token with 'none' algorithm should be rejected")
}

func TestValidateJWT_MalformedToken(t *testing.T) {
	a := New(testSecret, 0)

	for _, token := range []string{"", "not.a.jwt", "only.two", "<script>alert('xss')</script>"} {
		_, err := a.ValidateJWT(token)
		assert.Error(t, err, "malformed token '%s' should be rejected", token)
	}
}

func TestJWT_TokenExpiration(t *testing.T) {
	a := New(testSecret, time.Hour)

	token, err := a.GenerateJWT("user-123", "test@example.com", false)
	require.NoError(t, err)

	claims, err := a.ValidateJWT(token)
	require.NoError(t, err)

	diff := claims.ExpiresAt.Time.Sub(time.Now().Add(time.Hour)).Abs()
	assert.Less(t, diff, 5*time.Second)
}

func adminRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/admin", a.Middleware(), RequireAdmin(), func(c *gin.Context) {
		id, _ := GetUserID(c)
		c.String(http.StatusOK, id)
	})

	return r
}

func TestMiddleware(t *testing.T) {
	a := New(testSecret, 0)
	router := adminRouter(a)

	admin, err := a.GenerateJWT("admin-1", "a@example.com", true)
	require.NoError(t, err)

	user, err := a.GenerateJWT("user-1", "u@example.com", false)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + admin, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"not admin", "Bearer " + user, http.StatusForbidden},
		{"admin", "Bearer " + admin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "admin-1", w.Body.String())
			}
		})
	}
}
