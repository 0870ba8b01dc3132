package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"watchearn/pkg/errutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Error())
	r.GET("/", handlers...)
	return r
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorRendersReason(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{name: "quota", err: errutil.QuotaExceeded("limit"), status: http.StatusTooManyRequests, reason: "QUOTA_EXCEEDED"},
		{name: "funds", err: errutil.InsufficientFunds("funds"), status: http.StatusUnprocessableEntity, reason: "INSUFFICIENT_FUNDS"},
		{name: "transient", err: errutil.Transient("store", errors.New("locked")), status: http.StatusServiceUnavailable, reason: "TRANSIENT_STORE_FAILURE"},
		{name: "plain error", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newEngine(func(c *gin.Context) { _ = c.Error(tc.err) })
			w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
			require.Equal(t, tc.status, w.Code)
			require.Equal(t, tc.reason, decodeError(t, w).Error.Reason)
		})
	}
}

func TestErrorLeavesWrittenResponses(t *testing.T) {
	r := newEngine(func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		_ = c.Error(errors.New("late"))
	})
	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	const secret = "test-secret"
	r := newEngine(Auth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	token, err := GenerateToken(secret, "user-42", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := do(r, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "user-42", w.Body.String())

	expired, err := GenerateToken(secret, "user-42", -time.Minute)
	require.NoError(t, err)
	foreign, err := GenerateToken("other-secret", "user-42", time.Hour)
	require.NoError(t, err)
	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{}).SignedString([]byte(secret))
	require.NoError(t, err)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer " + expired, "Bearer " + foreign, "Bearer " + noUser} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := do(r, req)
		require.Equalf(t, http.StatusUnauthorized, w.Code, "header %q", header)
		require.Equal(t, "UNAUTHORIZED", decodeError(t, w).Error.Code)
	}
}

func TestAuthRejectsNoneAlgorithm(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseToken("secret", token)
	require.Error(t, err)
}

func TestInternalToken(t *testing.T) {
	r := newEngine(InternalToken("s3cret"), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderInternalToken, "s3cret")
	require.Equal(t, http.StatusNoContent, do(r, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderInternalToken, "wrong")
	require.Equal(t, http.StatusForbidden, do(r, req).Code)

	open := newEngine(InternalToken(""), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	require.Equal(t, http.StatusForbidden, do(open, httptest.NewRequest(http.MethodGet, "/", nil)).Code)
}

func TestRequestID(t *testing.T) {
	r := newEngine(func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := do(r, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, w.Body.String())
	require.Equal(t, w.Body.String(), w.Header().Get(HeaderRequestID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = do(r, req)
	require.Equal(t, "abc-123", w.Body.String())
}

func TestChannel(t *testing.T) {
	r := newEngine(Channel(), func(c *gin.Context) {
		c.String(http.StatusOK, GetChannel(c.Request.Context()))
	})

	cases := map[string]string{
		"":        "api",
		"Android": "android",
		"web":     "web",
		"toaster": "api",
	}
	for header, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(HeaderClientChannel, header)
		}
		require.Equal(t, want, do(r, req).Body.String())
	}
}
