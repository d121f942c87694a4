package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"goji.io"

	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

func table() (RouteTable, *int) {
	var stored int
	rt := RouteTable{
		{Method: http.MethodGet, Path: "/value"}:  GetInt(func() (int, error) { return stored, nil }),
		{Method: http.MethodPost, Path: "/value"}: SetInt(func(i int) error { stored = i; return nil }),
		{Method: http.MethodGet, Path: "/broken"}: GetInt(func() (int, error) {
			return 0, status.Errorf(status.Busy, "in use")
		}),
	}
	return rt, &stored
}

func exercise(t *testing.T, h http.Handler, stored *int) {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/value", strings.NewReader(`{"int":12}`)))
	if w.Code != http.StatusOK || *stored != 12 {
		t.Errorf("set returned %d, stored %d", w.Code, *stored)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/value", nil))
	if strings.TrimSpace(w.Body.String()) != `{"int":12}` {
		t.Errorf("get returned %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/broken", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for a busy error got %d", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/endpoints", nil))
	var eps []string
	if err := json.NewDecoder(w.Body).Decode(&eps); err != nil {
		t.Fatal(err)
	}
	want := []string{"GET /broken", "GET /value", "POST /value"}
	if strings.Join(eps, ",") != strings.Join(want, ",") {
		t.Errorf("expected endpoints %v got %v", want, eps)
	}
}

func TestBindChi(t *testing.T) {
	rt, stored := table()
	r := chi.NewRouter()
	rt.Bind(r)
	exercise(t, r, stored)
}

func TestBindGoji(t *testing.T) {
	rt, stored := table()
	m := goji.NewMux()
	rt.BindGoji(m)
	exercise(t, m, stored)
}

func TestBadBody(t *testing.T) {
	h := SetFloat(func(float64) error { return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"f64":`)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{genapi.ErrFeatureNotFound{Feature: "x"}, http.StatusNotFound},
		{status.Errorf(status.InvalidParameter, "bad"), http.StatusBadRequest},
		{status.Errorf(status.AccessDenied, "no"), http.StatusForbidden},
		{status.Errorf(status.NotSupported, "no"), http.StatusNotImplemented},
		{status.Errorf(status.Exhausted, "empty"), http.StatusServiceUnavailable},
		{status.Errorf(status.NoDataAvailable, "none"), http.StatusNotFound},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusFor(c.err); got != c.code {
			t.Errorf("%v: expected %d got %d", c.err, c.code, got)
		}
	}
}

func TestHumanPayload(t *testing.T) {
	w := httptest.NewRecorder()
	hp := HumanPayload{T: types.String, String: "abc"}
	hp.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.TrimSpace(w.Body.String()) != `{"str":"abc"}` {
		t.Errorf("unexpected payload %s", w.Body.String())
	}
	w = httptest.NewRecorder()
	hp = HumanPayload{T: types.Complex128}
	hp.EncodeAndRespond(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for an unsupported kind got %d", w.Code)
	}
}

func TestSubMuxSanitize(t *testing.T) {
	for in, want := range map[string]string{"cam": "/cam", "/cam/": "/cam", "/cam": "/cam"} {
		if got := SubMuxSanitize(in); got != want {
			t.Errorf("%q: expected %q got %q", in, want, got)
		}
	}
}
