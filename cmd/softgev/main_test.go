package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/generichttp"
	"github.jpl.nasa.gov/bdube/softgev/server/middleware/locker"
)

func TestDeviceConfig(t *testing.T) {
	dc := deviceConfig(config{
		FPS:         30,
		UserSetFile: "sets.yml",
		Sources: []sourceConf{
			{Type: "mono", Width: 128, Height: 8, PixelFormat: "RGB8"},
			{Type: "MultiPart"},
		},
	})
	if len(dc.Sources) != 2 || dc.UserSetFile != "sets.yml" {
		t.Fatalf("unexpected device config %+v", dc)
	}
	if dc.Sources[0].MultiPart || dc.Sources[0].Width != 128 || dc.Sources[0].PixelFormat != "RGB8" {
		t.Errorf("unexpected first source %+v", dc.Sources[0])
	}
	if !dc.Sources[1].MultiPart || dc.Sources[1].FPS != 30 {
		t.Errorf("unexpected second source %+v", dc.Sources[1])
	}
}

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestHandler(t *testing.T) {
	for _, router := range []string{"chi", "goji"} {
		tbl := table{rt: generichttp.RouteTable{
			{Method: http.MethodPost, Path: "/thing"}: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
		}}
		l := locker.New()
		locker.Inject(tbl, l)
		h := handler(config{Root: "/cam", Router: router}, tbl, l)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/cam/endpoints", nil))
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "POST /thing") {
			t.Errorf("%s: endpoints returned %d %s", router, w.Code, w.Body.String())
		}

		l.Lock()
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cam/thing", nil))
		if w.Code != http.StatusLocked {
			t.Errorf("%s: expected 423 while locked got %d", router, w.Code)
		}
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cam/lock", strings.NewReader(`{"bool":false}`)))
		if w.Code != http.StatusOK || l.Locked() {
			t.Errorf("%s: unlocking returned %d", router, w.Code)
		}
		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/cam/thing", nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: expected 200 once unlocked got %d", router, w.Code)
		}
	}
}
