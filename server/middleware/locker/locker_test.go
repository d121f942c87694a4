package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.jpl.nasa.gov/bdube/softgev/generichttp"
)

type table struct{ rt generichttp.RouteTable }

func (t table) RT() generichttp.RouteTable { return t.rt }

func TestCheck(t *testing.T) {
	l := New()
	tbl := table{rt: generichttp.RouteTable{}}
	Inject(tbl, l)
	mux := http.NewServeMux()
	mux.HandleFunc("/lock", func(w http.ResponseWriter, r *http.Request) {
		tbl.rt[generichttp.MethodPath{Method: r.Method, Path: "/lock"}](w, r)
	})
	mux.HandleFunc("/feature", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := l.Check(mux)

	do := func(method, path, body string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
		return w.Code
	}

	if c := do(http.MethodPost, "/lock", `{"bool":true}`); c != http.StatusOK || !l.Locked() {
		t.Fatalf("locking returned %d, locked %v", c, l.Locked())
	}
	if c := do(http.MethodPost, "/feature", `{}`); c != http.StatusLocked {
		t.Errorf("expected 423 while locked got %d", c)
	}
	if c := do(http.MethodGet, "/feature", ""); c != http.StatusOK {
		t.Errorf("expected reads to pass while locked, got %d", c)
	}
	if c := do(http.MethodPost, "/lock", `{"bool":false}`); c != http.StatusOK || l.Locked() {
		t.Fatalf("unlocking returned %d, locked %v", c, l.Locked())
	}
	if c := do(http.MethodPost, "/feature", `{}`); c != http.StatusOK {
		t.Errorf("expected 200 once unlocked got %d", c)
	}
	if c := do(http.MethodPost, "/lock", `nope`); c != http.StatusBadRequest {
		t.Errorf("expected 400 for a malformed body got %d", c)
	}
}
