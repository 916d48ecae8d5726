package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]any{"run_id": "abc", "changed": 3})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "abc", resp["run_id"])
	assert.EqualValues(t, 3, resp["changed"])
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONOK(rec, []int{1, 2})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[1,2]`, rec.Body.String())
}

func TestErrorResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		msg    string
	}{
		{"error", func(w http.ResponseWriter) { WriteJSONError(w, http.StatusConflict, "busy") }, http.StatusConflict, "busy"},
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid limit") }, http.StatusBadRequest, "invalid limit"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "db closed") }, http.StatusInternalServerError, "db closed"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "run not found") }, http.StatusNotFound, "run not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.msg, resp["error"])
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"products.json", "products.json"},
		{"run 2023/01/05.json", "run_2023_01_05.json"},
		{"../../etc/passwd", "etc_passwd"},
		{"a\"b\r\nc", "a_b_c"},
		{"__..", "unknown"},
		{"", "unknown"},
		{"änderung.png", "nderung.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, SanitizeFilename(string(long)), maxFilenameLen)
}

func TestSetAttachment(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	SetAttachment(rec, "run 1.json")
	assert.Equal(t, `attachment; filename="run_1.json"`, rec.Header().Get("Content-Disposition"))
}
