package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"retest_backend/internal/config"
	"retest_backend/internal/model"
	"retest_backend/internal/repository"
	"retest_backend/internal/service"
	"retest_backend/internal/testutil"
	"retest_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiHarness struct {
	db     *gorm.DB
	fx     *testutil.RetestFixture
	router *gin.Engine
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	now := time.Now()
	fx := testutil.SeedRetest(t, db, testutil.RetestOptions{
		MaxAttempts: 2,
		WindowStart: now.Add(-time.Hour),
		WindowEnd:   now.Add(time.Hour),
	})

	settings := config.RetestConfig{
		DefaultPassingThreshold: 50,
		OutboxInterval:          time.Minute,
		OutboxBatchSize:         10,
		OutboxMaxAttempts:       3,
		SummaryCacheTTL:         time.Minute,
	}
	remediation := repository.NewRemediationRepository(db)
	attempts := repository.NewAttemptRecordRepository(db)
	agg := service.NewBestValueAggregator(
		attempts,
		repository.NewBestSummaryRepository(db),
		repository.NewSummaryTaskRepository(db),
		repository.NewSummaryCache(nil, settings.SummaryCacheTTL),
		settings,
	)
	submissions := service.NewSubmissionService(db, remediation, attempts,
		repository.NewTestResultRepository(db), repository.NewDirectoryRepository(db), agg, settings)
	queries := service.NewRetestQueryService(remediation, attempts, agg, settings)

	sc := NewSubmissionController(submissions)
	rc := NewRetestController(queries)
	hc := NewHealthController(db, nil)

	r := gin.New()
	r.GET("/api/health", hc.HealthCheck)
	api := r.Group("/api", fakeAuth)
	api.POST("/tests/submit", sc.Submit)
	api.GET("/retests", rc.ListMine)
	api.GET("/retests/:assignmentId/status", rc.GetStatus)
	api.GET("/retests/tests/:parentTestId/attempts", rc.ListAttempts)
	api.GET("/retests/tests/:parentTestId/best", rc.GetBest)
	api.GET("/teacher/retests/:assignmentId/targets", rc.ListTargets)

	return &apiHarness{db: db, fx: fx, router: r}
}

// fakeAuth takes the caller from the as/role query parameters so handlers can
// be driven without signing tokens.
func fakeAuth(c *gin.Context) {
	id := util.QueryIntDefault(c, "as", 0)
	if id == 0 {
		c.Next()
		return
	}
	role := model.UserRole(c.Query("role"))
	if role == "" {
		role = model.Student
	}
	c.Set("user", &util.Claims{UserID: uint(id), Role: role})
	c.Next()
}

func (h *apiHarness) request(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func (h *apiHarness) asStudent(path string) string {
	return path + "?as=" + uintString(h.fx.Student.ID)
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

func (h *apiHarness) submitBody(score float64) map[string]interface{} {
	return map[string]interface{}{
		"testId":             h.fx.Test.ID,
		"score":              score,
		"maxScore":           10,
		"answers":            map[string]interface{}{"q1": "A"},
		"timeTaken":          60,
		"retestAssignmentId": h.fx.Assignment.ID,
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestSubmitEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	w := h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(3), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp util.SubmissionResponse
	decode(t, w, &resp)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.ResultID)
	assert.Equal(t, 30.0, resp.PercentageScore)
	assert.Equal(t, 1, resp.AttemptNumber)
	assert.Equal(t, string(model.RetestInProgress), resp.Status)

	w = h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(2), nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &resp)
	assert.Equal(t, string(model.RetestFailed), resp.Status)

	// budget used up
	w = h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(9), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	decode(t, w, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, util.ErrAttemptsExhausted.Error(), resp.Message)
}

func TestSubmitEndpointRejectsBadInput(t *testing.T) {
	h := newAPIHarness(t)

	w := h.request(t, http.MethodPost, "/api/tests/submit", h.submitBody(3), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), `{"testId":`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")

	body := h.submitBody(3)
	delete(body, "score")
	w = h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), body, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "score is required")
}

func TestSubmitEndpointReplaysIdempotencyKey(t *testing.T) {
	h := newAPIHarness(t)
	headers := map[string]string{util.IdempotencyHeader: "retry-7f3a"}

	first := h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(4), headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(4), headers)
	require.Equal(t, http.StatusOK, second.Code)

	var a, b util.SubmissionResponse
	decode(t, first, &a)
	decode(t, second, &b)
	assert.Equal(t, a.ResultID, b.ResultID)
	assert.Equal(t, a.AttemptNumber, b.AttemptNumber)

	var n int64
	require.NoError(t, h.db.Model(&model.AttemptRecord{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestRetestReadEndpoints(t *testing.T) {
	h := newAPIHarness(t)

	w := h.request(t, http.MethodPost, h.asStudent("/api/tests/submit"), h.submitBody(8), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Code int                      `json:"code"`
		Data service.RetestStatusView `json:"data"`
	}
	w = h.request(t, http.MethodGet, h.asStudent("/api/retests/"+uintString(h.fx.Assignment.ID)+"/status"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &status)
	assert.Equal(t, model.RetestPassed, status.Data.Status)
	assert.Equal(t, 2, status.Data.AttemptNumber)
	assert.False(t, status.Data.CanSubmit)

	w = h.request(t, http.MethodGet, h.asStudent("/api/retests"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":1`)

	testID := uintString(h.fx.Test.ID)
	w = h.request(t, http.MethodGet, h.asStudent("/api/retests/tests/"+testID+"/attempts"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"attemptNumber":2`)

	var best struct {
		Data model.BestRetestSummary `json:"data"`
	}
	w = h.request(t, http.MethodGet, h.asStudent("/api/retests/tests/"+testID+"/best"), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &best)
	assert.Equal(t, 80.0, best.Data.BestPercentage)
	assert.True(t, best.Data.Passed)

	w = h.request(t, http.MethodGet, h.asStudent("/api/retests/tests/"+uintString(h.fx.Test.ID+99)+"/best"), nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.request(t, http.MethodGet, h.asStudent("/api/retests/abc/status"), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the teacher is not a target of the assignment
	w = h.request(t, http.MethodGet, "/api/retests/"+uintString(h.fx.Assignment.ID)+"/status?as="+uintString(h.fx.Teacher.ID), nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTargetsEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	path := "/api/teacher/retests/" + uintString(h.fx.Assignment.ID) + "/targets"

	w := h.request(t, http.MethodGet, path+"?role=teacher&as="+uintString(h.fx.Teacher.ID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), h.fx.Student.Email)
	assert.Contains(t, w.Body.String(), `"total":1`)

	w = h.request(t, http.MethodGet, path+"?role=teacher&as="+uintString(h.fx.Student.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = h.request(t, http.MethodGet, "/api/teacher/retests/9999/targets?role=admin&as=1", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := newAPIHarness(t)

	w := h.request(t, http.MethodGet, "/api/health", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"up"`)
	assert.Contains(t, w.Body.String(), `"cache":"disabled"`)
}
