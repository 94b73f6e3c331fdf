package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("s3cret")

func protected(enabled bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", AuthRequired(enabled, secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("subject"))
	})
	return r
}

func call(r *gin.Engine, target, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthDisabledPassesAsSystem(t *testing.T) {
	w := call(protected(false), "/", "")
	if w.Code != http.StatusOK || w.Body.String() != "system" {
		t.Fatalf("got %d %q", w.Code, w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	r := protected(true)
	good, err := GenerateToken(secret, "deploy-bot", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expired, _ := GenerateToken(secret, "deploy-bot", -time.Minute)
	forged, _ := GenerateToken([]byte("other"), "deploy-bot", time.Hour)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString(secret)

	tests := []struct {
		name   string
		target string
		auth   string
		want   int
	}{
		{"missing", "/", "", http.StatusUnauthorized},
		{"header", "/", "Bearer " + good, http.StatusOK},
		{"query", "/?access_token=" + good, "", http.StatusOK},
		{"expired", "/", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "/", "Bearer " + forged, http.StatusUnauthorized},
		{"no expiry", "/", "Bearer " + noExp, http.StatusUnauthorized},
		{"not bearer", "/", "Basic " + good, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := call(r, tt.target, tt.auth)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
			if tt.want == http.StatusOK && w.Body.String() != "deploy-bot" {
				t.Fatalf("subject = %q", w.Body.String())
			}
		})
	}
}
