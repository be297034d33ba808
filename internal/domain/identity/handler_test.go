package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *mockPatientRepo, *echo.Echo) {
	svc, repo := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func jsonRequest(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_MatchPatient(t *testing.T) {
	h, repo, e := newTestHandler()
	p := repo.add(Patient{Email: strp("jo@example.com")})

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/patients/$match", `{"email":"JO@example.com"}`)
	if err := h.MatchPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	var resp matchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Matched || resp.Patient == nil {
		t.Fatalf("expected a match, got %s", rec.Body.String())
	}
	if resp.Patient.ID != p.ID {
		t.Errorf("expected %s, got %s", p.ID, resp.Patient.ID)
	}
	if resp.Patient.MatchedBy != MatchedByEmail {
		t.Errorf("expected matched_by email, got %s", resp.Patient.MatchedBy)
	}
}

func TestHandler_MatchPatient_NoMatch(t *testing.T) {
	h, _, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/patients/$match", `{"email":"nobody@example.com"}`)
	if err := h.MatchPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"matched":false`) {
		t.Errorf("expected matched=false, got %s", rec.Body.String())
	}
}

func TestHandler_MatchBatch(t *testing.T) {
	h, repo, e := newTestHandler()
	p := repo.add(Patient{Phone: strp("555-444-3333")})

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/patients/$match-batch",
		`{"items":[{"phone":"(555) 444 3333"},{"email":"x@y.z"}]}`)
	if err := h.MatchBatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var resp batchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	if resp.Results[0] == nil || resp.Results[0].ID != p.ID {
		t.Errorf("expected first result %s, got %+v", p.ID, resp.Results[0])
	}
	if resp.Results[1] != nil {
		t.Errorf("expected null second result, got %+v", resp.Results[1])
	}
	if resp.Matched != 1 {
		t.Errorf("expected matched=1, got %d", resp.Matched)
	}
}

func TestHandler_MatchBatch_Empty(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := jsonRequest(e, http.MethodPost, "/api/v1/patients/$match-batch", `{"items":[]}`)
	err := h.MatchBatch(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_CreatePatient(t *testing.T) {
	h, _, e := newTestHandler()

	c, rec := jsonRequest(e, http.MethodPost, "/api/v1/patients", `{"first_name":"Jo","last_name":"Ng","phone":"555 111 2222"}`)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_CreatePatient_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()

	c, _ := jsonRequest(e, http.MethodPost, "/api/v1/patients", `{"gender":"male"}`)
	if err := h.CreatePatient(c); err == nil {
		t.Error("expected error for missing identifiers")
	}
}

func TestHandler_GetPatient(t *testing.T) {
	h, _, e := newTestHandler()

	p := &Patient{Email: strp("get@example.com")}
	h.svc.CreatePatient(context.Background(), p)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.GetPatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, _, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetPatient(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
