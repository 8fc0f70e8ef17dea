package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/medhome/internal/config"
	"github.com/iliyamo/medhome/internal/middleware"
	"github.com/iliyamo/medhome/internal/model"
	"github.com/iliyamo/medhome/internal/service"
)

func ptr[T any](v T) *T { return &v }

type fakeSignup struct {
	got service.SignupInput
	err error
}

func (f *fakeSignup) Signup(_ context.Context, in service.SignupInput) (*model.User, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{ID: 7, Username: in.Username, SerialNum: ptr("MH-830B35DF")}, nil
}

type fakeSessions struct {
	revoked []string
	err     error
}

func (f *fakeSessions) Login(_ context.Context, username, password string) (string, *model.User, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	if username != "alice" || password != "pass123" {
		return "", nil, service.ErrInvalidCredentials
	}
	return "tok-1", &model.User{ID: 1, Username: "alice", SerialNum: ptr("MH-830B35DF")}, nil
}

func (f *fakeSessions) Revoke(_ context.Context, token string) error {
	f.revoked = append(f.revoked, token)
	return f.err
}

func do(e *echo.Echo, method, target, contentType, body string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	for _, m := range mutate {
		m(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newAuthEcho(p *fakeSignup, s *fakeSessions, cfg config.Config) *echo.Echo {
	h := NewAuthHandler(cfg, p, s, zap.NewNop())
	e := echo.New()
	e.POST("/v1/auth/signup", h.Signup)
	e.POST("/v1/auth/login", h.Login)
	e.POST("/v1/auth/logout", h.Logout)
	return e
}

func TestSignup_JSON(t *testing.T) {
	p := &fakeSignup{}
	e := newAuthEcho(p, &fakeSessions{}, config.Config{})

	rec := do(e, http.MethodPost, "/v1/auth/signup", echo.MIMEApplicationJSON,
		`{"user":"alice","fname":"Alice","lname":"Smith","email":"alice@example.com","password":"pass123"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"id":7,"username":"alice","serial_num":"MH-830B35DF"}`, rec.Body.String())
	assert.Equal(t, "Smith", p.got.LastName)
}

func TestSignup_Form(t *testing.T) {
	p := &fakeSignup{}
	e := newAuthEcho(p, &fakeSessions{}, config.Config{})

	form := url.Values{"user": {"bob"}, "fname": {"Bob"}, "lname": {"Johnson"}, "email": {"bob@example.com"}, "password": {"pass456"}}
	rec := do(e, http.MethodPost, "/v1/auth/signup", echo.MIMEApplicationForm, form.Encode())

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "bob", p.got.Username)
	assert.Equal(t, "pass456", p.got.Password)
}

func TestSignup_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{service.ErrConflict, http.StatusConflict},
		{service.ErrNoDeviceAvailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: email", service.ErrInvalidInput), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := newAuthEcho(&fakeSignup{err: tc.err}, &fakeSessions{}, config.Config{})
		rec := do(e, http.MethodPost, "/v1/auth/signup", echo.MIMEApplicationJSON, `{"user":"alice"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestLogin_SetsCookie(t *testing.T) {
	e := newAuthEcho(&fakeSignup{}, &fakeSessions{}, config.Config{SessionCookieSecure: true, SessionMaxAge: time.Hour})

	rec := do(e, http.MethodPost, "/v1/auth/login", echo.MIMEApplicationJSON, `{"username":"alice","password":"pass123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user":{"id":1,"username":"alice","serial_num":"MH-830B35DF"},"token":"tok-1"}`, rec.Body.String())

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "sessionId", cookies[0].Name)
	assert.Equal(t, "tok-1", cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, 3600, cookies[0].MaxAge)
}

func TestLogin_Failures(t *testing.T) {
	e := newAuthEcho(&fakeSignup{}, &fakeSessions{}, config.Config{})

	rec := do(e, http.MethodPost, "/v1/auth/login", echo.MIMEApplicationJSON, `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Result().Cookies())

	rec = do(e, http.MethodPost, "/v1/auth/login", echo.MIMEApplicationJSON, `{"username":"alice"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(e, http.MethodPost, "/v1/auth/login", echo.MIMEApplicationJSON, `{`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout(t *testing.T) {
	s := &fakeSessions{}
	e := newAuthEcho(&fakeSignup{}, s, config.Config{})

	rec := do(e, http.MethodPost, "/v1/auth/logout", "", "", func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: "sessionId", Value: "tok-1"})
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"tok-1"}, s.revoked)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	// no token at all still succeeds
	rec = do(e, http.MethodPost, "/v1/auth/logout", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type fakeIngester struct {
	got service.Submission
	err error
}

func (f *fakeIngester) Ingest(_ context.Context, sub service.Submission) (*model.VitalsRecord, error) {
	f.got = sub
	if f.err != nil {
		return nil, f.err
	}
	return &model.VitalsRecord{
		Owner:     "alice",
		SerialNum: sub.Serial,
		Vitals: model.Vitals{
			AvgHeartRate: *sub.AvgHR, AvgSpO2: *sub.AvgSpO2, Weight: *sub.Weight,
			Systolic: *sub.Systolic, Diastolic: *sub.Diastolic,
		},
	}, nil
}

func TestIngest_EchoesValues(t *testing.T) {
	in := &fakeIngester{}
	cache := &fakeCache{}
	h := NewVitalsHandler(in, cache, zap.NewNop())
	e := echo.New()
	e.POST("/avgHRavgSpO2weightbpSbpD", h.Ingest)

	rec := do(e, http.MethodPost, "/avgHRavgSpO2weightbpSbpD", echo.MIMEApplicationJSON,
		`{"serial_number":"MH-830B35DF","avgHR":72,"avgSpO2":97,"weight":80.5,"bpS":120,"bpD":0}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"message":"Data received successfully","serial_number":"MH-830B35DF","avgHR":72,"avgSpO2":97,"weight":80.5,"bpS":120,"bpD":0}`,
		rec.Body.String())
	require.NotNil(t, in.got.Diastolic)
	assert.Equal(t, 0.0, *in.got.Diastolic)
	assert.Equal(t, []string{"alice"}, cache.dropped)
}

type fakeCache struct {
	dropped []string
	err     error
}

func (f *fakeCache) Invalidate(_ context.Context, username string) error {
	f.dropped = append(f.dropped, username)
	return f.err
}

func TestIngest_CacheFailureStillAccepts(t *testing.T) {
	h := NewVitalsHandler(&fakeIngester{}, &fakeCache{err: errors.New("redis down")}, zap.NewNop())
	e := echo.New()
	e.POST("/v1/vitals", h.Ingest)

	rec := do(e, http.MethodPost, "/v1/vitals", echo.MIMEApplicationJSON,
		`{"serial_number":"MH-830B35DF","avgHR":72,"avgSpO2":97,"weight":80.5,"bpS":120,"bpD":80}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIngest_ErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: bpD", service.ErrMissingField), http.StatusBadRequest},
		{fmt.Errorf("%w: avgHR is not a finite number", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrUnknownDevice, http.StatusNotFound},
		{service.ErrStorageUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		cache := &fakeCache{}
		h := NewVitalsHandler(&fakeIngester{err: tc.err}, cache, zap.NewNop())
		e := echo.New()
		e.POST("/v1/vitals", h.Ingest)
		rec := do(e, http.MethodPost, "/v1/vitals", echo.MIMEApplicationJSON, `{"serial_number":"MH-1"}`)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.Empty(t, cache.dropped)
	}
}

type fakeDashboards struct {
	title string
	err   error
}

func (f *fakeDashboards) Profile(_ context.Context, username string) (*model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.User{Username: username, FirstName: "Alice", LastName: "Smith", Email: "alice@example.com",
		PasswordHash: "$2a$secret", SerialNum: ptr("MH-830B35DF")}, nil
}

func (f *fakeDashboards) Dashboard(_ context.Context, _ string) (*service.Dashboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &service.Dashboard{BPM: []float64{70}, SpO2: []float64{98}, Weight: []float64{80},
		Systolic: []float64{120}, Diastolic: []float64{75}, Dates: []string{"Jan 02"}, Findings: "x"}, nil
}

func (f *fakeDashboards) Export(_ context.Context, username, title string) (*service.Export, error) {
	f.title = title
	if f.err != nil {
		return nil, f.err
	}
	if title == "" {
		title = service.DefaultReportTitle
	}
	return &service.Export{Title: title, PatientName: "Alice Smith"}, nil
}

func newDashboardEcho(d *fakeDashboards) *echo.Echo {
	h := NewDashboardHandler(d, zap.NewNop())
	e := echo.New()
	e.GET("/api/user/:username", h.Profile)
	e.GET("/dashboard/user/:username/data", h.Data)
	e.POST("/export/user/:username", h.Export)
	return e
}

func TestProfile_OmitsPassword(t *testing.T) {
	e := newDashboardEcho(&fakeDashboards{})

	rec := do(e, http.MethodGet, "/api/user/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"username":"alice","first_name":"Alice","last_name":"Smith","email":"alice@example.com","serial_num":"MH-830B35DF"}`,
		rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestDashboardData(t *testing.T) {
	e := newDashboardEcho(&fakeDashboards{})

	rec := do(e, http.MethodGet, "/dashboard/user/alice/data", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"bpm":[70],"spo2":[98],"weight":[80],"systolic":[120],"diastolic":[75],"dates":["Jan 02"],"theResponse":"x"}`,
		rec.Body.String())
}

func TestExport_Title(t *testing.T) {
	d := &fakeDashboards{}
	e := newDashboardEcho(d)

	rec := do(e, http.MethodPost, "/export/user/alice", echo.MIMEApplicationJSON, `{"title":"Weekly"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Weekly", d.title)

	rec = do(e, http.MethodPost, "/export/user/alice", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title":"Health Report"`)
}

func TestExport_NotFound(t *testing.T) {
	e := newDashboardEcho(&fakeDashboards{err: service.ErrNotFound})

	rec := do(e, http.MethodPost, "/export/user/alice", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"not found"}`, rec.Body.String())
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health(fakePinger{}))
	e.GET("/down", Health(fakePinger{err: errors.New("gone")}))

	rec := do(e, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = do(e, http.MethodGet, "/down", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeReleaser struct {
	got *model.User
	err error
}

func (f *fakeReleaser) Release(_ context.Context, u *model.User) (string, error) {
	f.got = u
	if f.err != nil {
		return "", f.err
	}
	return *u.SerialNum, nil
}

type tokenAuthz map[string]*model.User

func (a tokenAuthz) Authorize(_ context.Context, token, username string) (*model.User, error) {
	u, ok := a[token]
	if !ok || u.Username != username {
		return nil, service.ErrForbidden
	}
	return u, nil
}

func newDeviceEcho(r *fakeReleaser) *echo.Echo {
	authz := tokenAuthz{"tok-alice": {ID: 1, Username: "alice", SerialNum: ptr("MH-830B35DF")}}
	h := NewDeviceHandler(r, zap.NewNop())
	e := echo.New()
	e.DELETE("/api/user/:username/device", h.Release, middleware.RequireOwner(authz, "username", zap.NewNop()))
	return e
}

func TestReleaseDevice(t *testing.T) {
	r := &fakeReleaser{}
	e := newDeviceEcho(r)

	rec := do(e, http.MethodDelete, "/api/user/alice/device", "", "", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok-alice"})
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Device released","serial_number":"MH-830B35DF"}`, rec.Body.String())
	require.NotNil(t, r.got)
	assert.Equal(t, "alice", r.got.Username)
}

func TestReleaseDevice_Failures(t *testing.T) {
	r := &fakeReleaser{err: service.ErrNotFound}
	e := newDeviceEcho(r)

	rec := do(e, http.MethodDelete, "/api/user/alice/device", "", "", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok-alice"})
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// another user's device is closed before the handler runs
	r.got = nil
	rec = do(e, http.MethodDelete, "/api/user/bob/device", "", "", func(req *http.Request) {
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok-alice"})
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"forbidden"}`, rec.Body.String())
	assert.Nil(t, r.got)
}
