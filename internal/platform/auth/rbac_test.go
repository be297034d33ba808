package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func callWithRoles(mw echo.MiddlewareFunc, roles []string) error {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if roles != nil {
		req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, roles))
	}
	return mw(func(c echo.Context) error { return nil })(e.NewContext(req, httptest.NewRecorder()))
}

func TestRequireRole_Allowed(t *testing.T) {
	if err := callWithRoles(RequireRole(RoleAdmin, RoleIntake), []string{"intake"}); err != nil {
		t.Errorf("expected intake to pass, got %v", err)
	}
}

func TestRequireRole_Denied(t *testing.T) {
	err := callWithRoles(RequireRole(RoleAdmin), []string{"intake"})
	expectStatus(t, err, http.StatusForbidden)

	err = callWithRoles(RequireRole(RoleIntake), nil)
	expectStatus(t, err, http.StatusForbidden)
}

func TestRequireRole_AdminBypass(t *testing.T) {
	if err := callWithRoles(RequireRole("auditor"), []string{"admin"}); err != nil {
		t.Errorf("expected admin to pass every role check, got %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty user id, got %q", got)
	}
	ctx := context.WithValue(context.Background(), UserIDKey, "u-1")
	if got := UserIDFromContext(ctx); got != "u-1" {
		t.Errorf("expected u-1, got %q", got)
	}
}
