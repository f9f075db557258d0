package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-admission-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestJSONWritesEnvelope(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, gin.H{"id": "c1"}, nil, map[string]interface{}{"cached": true})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	var env map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.JSONEq(t, `{"id":"c1"}`, string(env["data"]))
	assert.JSONEq(t, `{"cached":true}`, string(env["meta"]))
	assert.NotContains(t, env, "error")
}

func TestErrorUsesTypedStatusAndDetails(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Validation(appErrors.ErrCourseFull))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"COURSE_FULL"`)
	assert.Empty(t, c.Errors, "client errors are not attached for logging")
}

func TestErrorAttachesServerFailures(t *testing.T) {
	c, w := newContext()
	Error(c, errors.New("connection reset"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INTERNAL_ERROR"`)
	assert.NotContains(t, w.Body.String(), "connection reset")
	require.Len(t, c.Errors, 1)
}
