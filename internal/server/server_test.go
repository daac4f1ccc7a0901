package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/foresight/internal/store"
)

func newMockStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &store.Store{DB: db}, mock, func() { db.Close() }
}

func TestSignupCreatesUser(t *testing.T) {
	e := echo.New()
	st, mock, cleanup := newMockStore(t)
	defer cleanup()
	handler := &AuthHandler{Store: st, Secret: []byte("secret")}

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("alice@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"alice@example.com","password":"verysecure"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := handler.signup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	e := echo.New()
	st, _, cleanup := newMockStore(t)
	defer cleanup()
	handler := &AuthHandler{Store: st, Secret: []byte("secret")}

	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(`{"email":"a@b.c","password":"short"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := handler.signup(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestLoginReturnsToken(t *testing.T) {
	e := echo.New()
	st, mock, cleanup := newMockStore(t)
	defer cleanup()
	handler := &AuthHandler{Store: st, Secret: []byte("secret")}

	hash, _ := bcrypt.GenerateFromPassword([]byte("verysecure"), bcrypt.DefaultCost)
	mock.ExpectQuery(`SELECT id, password_hash FROM users WHERE email=\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"verysecure"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := handler.login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("empty token")
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	e := echo.New()
	st, mock, cleanup := newMockStore(t)
	defer cleanup()
	handler := &AuthHandler{Store: st, Secret: []byte("secret")}

	hash, _ := bcrypt.GenerateFromPassword([]byte("rightpassword"), bcrypt.DefaultCost)
	mock.ExpectQuery(`SELECT id, password_hash FROM users WHERE email=\$1`).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash)))

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"wrongpassword"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	err := handler.login(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestAuthMiddleware(t *testing.T) {
	e := echo.New()
	secret := []byte("secret")
	next := func(c echo.Context) error { return c.String(http.StatusOK, c.Get("user_id").(string)) }
	mw := AuthMiddleware(secret)

	token, err := SignJWT("user-1", secret, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	if err := mw(next)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
	if rec.Body.String() != "user-1" {
		t.Errorf("subject = %q, want user-1", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	err = mw(next)(e.NewContext(req, rec))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	err = mw(next)(e.NewContext(req, rec))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %v", err)
	}
}

func TestCreateForecastValidation(t *testing.T) {
	e := echo.New()
	st, _, cleanup := newMockStore(t)
	defer cleanup()
	handler := &ForecastsHandler{Store: st}

	cases := []struct {
		name string
		body string
	}{
		{"missing title", `{"question":{"date_begin":"2024-01-01T00:00:00Z","date_end":"2024-06-30T00:00:00Z"}}`},
		{"inverted dates", `{"question":{"title":"q","date_begin":"2024-06-30T00:00:00Z","date_end":"2024-01-01T00:00:00Z"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/forecasts", strings.NewReader(tc.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			err := handler.create(e.NewContext(req, rec))
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %v", err)
			}
		})
	}
}

func TestGetForecastNotFound(t *testing.T) {
	e := echo.New()
	st, mock, cleanup := newMockStore(t)
	defer cleanup()
	handler := &ForecastsHandler{Store: st}

	mock.ExpectQuery(`SELECT run_id, retrieval_index,`).
		WithArgs("missing-id").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts/missing-id", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing-id")

	err := handler.get(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestListForecasts(t *testing.T) {
	e := echo.New()
	st, mock, cleanup := newMockStore(t)
	defer cleanup()
	handler := &ForecastsHandler{Store: st}

	cols := []string{"run_id", "question_id", "title", "category", "retrieval_index", "probability", "token", "brier_score", "created_at"}
	mock.ExpectQuery(`SELECT run_id, question_id, title,`).
		WithArgs("q-1", 50).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("run-1", "q-1", "Will it launch?", "Science & Tech", 0, 0.8, "", nil, time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/api/forecasts?question_id=q-1", nil)
	rec := httptest.NewRecorder()
	if err := handler.list(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp []store.ForecastSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp) != 1 || resp[0].RunID != "run-1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	if isDue("@daily", now.Add(-time.Hour)) {
		t.Error("daily schedule due after one hour")
	}
	if !isDue("@daily", now.Add(-25*time.Hour)) {
		t.Error("daily schedule not due after 25 hours")
	}
	if isDue("@hourly", now.Add(-30*time.Minute)) {
		t.Error("hourly schedule due after 30 minutes")
	}
	if !isDue("0 0 * * *", now.Add(-48*time.Hour)) {
		t.Error("cron schedule not due after two days")
	}
}
