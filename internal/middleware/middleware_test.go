package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/moracollect-api/internal/models"
	"github.com/noah-isme/moracollect-api/internal/service"
	appErrors "github.com/noah-isme/moracollect-api/pkg/errors"
	"github.com/noah-isme/moracollect-api/pkg/logger"
	"github.com/noah-isme/moracollect-api/pkg/response"
)

type stubVerifier struct {
	contributor *models.Contributor
	err         error
	token       string
}

func (s *stubVerifier) Verify(token string) (*models.Contributor, error) {
	s.token = token
	return s.contributor, s.err
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", append(handlers, func(c *gin.Context) {
		contributor, _ := CurrentContributor(c)
		c.JSON(http.StatusOK, gin.H{"id": contributor.ID, "log": c.GetString(logger.ContributorKey)})
	})...)
	return r
}

func serve(r http.Handler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestJWTSetsContributor(t *testing.T) {
	verifier := &stubVerifier{contributor: &models.Contributor{ID: "u1"}}
	w := serve(newRouter(JWT(verifier)), "Bearer abc.def")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc.def", verifier.token)
	assert.JSONEq(t, `{"id":"u1","log":"u1"}`, w.Body.String())
}

func TestJWTRejectsMissingOrInvalidTokens(t *testing.T) {
	cases := map[string]struct {
		header   string
		verifier *stubVerifier
	}{
		"missing header": {"", &stubVerifier{}},
		"wrong scheme":   {"Basic abc", &stubVerifier{}},
		"empty token":    {"Bearer  ", &stubVerifier{}},
		"rejected token": {"Bearer abc", &stubVerifier{err: appErrors.Clone(appErrors.ErrUnauthenticated, "token expired")}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := serve(newRouter(JWT(tc.verifier)), tc.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, appErrors.ErrUnauthenticated.Code, errorCode(t, w))
		})
	}
}

func TestJWTHidesUntypedVerifierErrors(t *testing.T) {
	w := serve(newRouter(JWT(&stubVerifier{err: errors.New("boom")})), "Bearer abc")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRequireRoles(t *testing.T) {
	admin := &stubVerifier{contributor: &models.Contributor{ID: "ops", Roles: []string{RoleAdmin}}}
	member := &stubVerifier{contributor: &models.Contributor{ID: "u1"}}

	w := serve(newRouter(JWT(admin), RequireRoles(RoleAdmin)), "Bearer t")
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(newRouter(JWT(member), RequireRoles(RoleAdmin)), "Bearer t")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))

	w = serve(newRouter(RequireRoles(RoleAdmin)), "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestResponseMetaCollectsValues(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(WithResponseMeta())
	var captured map[string]interface{}
	r.GET("/", func(c *gin.Context) {
		SetMeta(c, "source", "snapshot")
		captured = ExtractMeta(c)
		c.Status(http.StatusNoContent)
	})
	serve(r, "")

	assert.Equal(t, "snapshot", captured["source"])
	assert.Contains(t, captured, "processing_time_ms")
}

func TestSetMetaWithoutMiddlewareIsNoop(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	SetMeta(c, "source", "edge")
	assert.Nil(t, ExtractMeta(c))
}

func pathLabels(t *testing.T, metrics *service.MetricsService) []string {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	var paths []string
	for _, family := range families {
		if family.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "path" {
					paths = append(paths, label.GetValue())
				}
			}
		}
	}
	return paths
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics, "/metrics"))
	r.GET("/v1/collections/:collectionId/items", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/v1/collections/c1/items", "/v1/submissions/0b7c1a52", "/metrics"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.ElementsMatch(t, []string{"/v1/collections/:collectionId/items", "unmatched"}, pathLabels(t, metrics))
}
