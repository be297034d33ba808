package dedup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(locker Locker) (*Handler, *mockStore, *echo.Echo) {
	a, b, c := threePatients()
	store := newMockStore(a, b, c, patient(20, "p@x.com", ""), patient(21, "P@x.com", ""))
	svc := NewService(store, testRegistry("labs"), locker, zerolog.Nop(), Options{})
	return NewHandler(svc), store, echo.New()
}

func TestHandler_Preview_Paginated(t *testing.T) {
	h, store, e := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/duplicates?limit=1&offset=1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Preview(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, store.writes)

	var body struct {
		Mode          string `json:"mode"`
		ClustersFound int    `json:"clusters_found"`
		Clusters      struct {
			Data    []ClusterReport `json:"data"`
			Total   int             `json:"total"`
			HasMore bool            `json:"has_more"`
		} `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "preview", body.Mode)
	assert.Equal(t, 2, body.ClustersFound)
	assert.Equal(t, 2, body.Clusters.Total)
	require.Len(t, body.Clusters.Data, 1)
	assert.Equal(t, ReasonEmail, body.Clusters.Data[0].Reason)
	assert.False(t, body.Clusters.HasMore)
}

func TestHandler_Merge_RequiresConfirm(t *testing.T) {
	h, store, e := newTestHandler(nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/duplicates/merge", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Merge(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, 0, store.writes)
}

func TestHandler_Merge(t *testing.T) {
	h, store, e := newTestHandler(&fakeLocker{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/duplicates/merge", strings.NewReader(`{"confirm":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Merge(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, store.patients, 2)
	assert.Contains(t, rec.Body.String(), `"duplicates_removed":3`)
}

func TestHandler_Merge_Conflict(t *testing.T) {
	h, _, e := newTestHandler(&fakeLocker{held: true})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/duplicates/merge", strings.NewReader(`{"confirm":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Merge(c)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, he.Code)
}

func TestHandler_Export(t *testing.T) {
	h, _, e := newTestHandler(nil)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/admin/duplicates/export", nil), rec)

	require.NoError(t, h.Export(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMIME, rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), ".xlsx")
	assert.NotZero(t, rec.Body.Len())
}

func TestHandler_Registry(t *testing.T) {
	h, _, e := newTestHandler(nil)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, h.Registry(c))
	assert.Contains(t, rec.Body.String(), `"table":"labs"`)
}
