// Package generichttp defines the route table, JSON payloads and handler
// generators shared by the HTTP wrappers of the emulator
package generichttp

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi"
	"goji.io"
	"goji.io/pat"

	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/status"
)

// MethodPath is a key in a route table, an HTTP method and a path
type MethodPath struct {
	Method, Path string
}

// RouteTable maps method and path pairs to handlers
type RouteTable map[MethodPath]http.HandlerFunc

// Endpoints returns the routes in the table as "METHOD /path", sorted
func (rt RouteTable) Endpoints() []string {
	routes := make([]string, 0, len(rt))
	for k := range rt {
		routes = append(routes, k.Method+" "+k.Path)
	}
	sort.Strings(routes)
	return routes
}

// Bind binds the routes to a chi router, along with a GET route
// /endpoints which lists them
func (rt RouteTable) Bind(r chi.Router) {
	for k, v := range rt {
		r.MethodFunc(k.Method, k.Path, v)
	}
	r.Get("/endpoints", rt.listEndpoints)
}

// BindGoji binds the routes to a goji mux, along with /endpoints
func (rt RouteTable) BindGoji(m *goji.Mux) {
	for k, v := range rt {
		m.HandleFunc(pat.NewWithMethods(k.Path, k.Method), v)
	}
	m.HandleFunc(pat.Get("/endpoints"), rt.listEndpoints)
}

func (rt RouteTable) listEndpoints(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(rt.Endpoints())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HTTPer is something that has a route table
type HTTPer interface {
	RT() RouteTable
}

// SubMuxSanitize turns a root path into one suitable for mounting a sub
// router, with a leading slash and no trailing one
func SubMuxSanitize(str string) string {
	str = strings.TrimSuffix(str, "/")
	if !strings.HasPrefix(str, "/") {
		str = "/" + str
	}
	return str
}

// BoolT is a struct with a single bool field
type BoolT struct {
	Bool bool `json:"bool"`
}

// FloatT is a struct with a single float field
type FloatT struct {
	F64 float64 `json:"f64"`
}

// IntT is a struct with a single int field
type IntT struct {
	Int int `json:"int"`
}

// StrT is a struct with a single string field
type StrT struct {
	Str string `json:"str"`
}

// HumanPayload holds one of the basic types and encodes it as the matching
// single field struct
type HumanPayload struct {
	Bool   bool
	Float  float64
	Int    int
	String string
	T      types.BasicKind
}

// EncodeAndRespond writes the payload to w as JSON
func (hp *HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	var v interface{}
	switch hp.T {
	case types.Bool:
		v = BoolT{Bool: hp.Bool}
	case types.Float64:
		v = FloatT{F64: hp.Float}
	case types.Int:
		v = IntT{Int: hp.Int}
	case types.String:
		v = StrT{Str: hp.String}
	default:
		http.Error(w, "payload of unsupported kind", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// StatusFor maps an error to the HTTP status it is reported with
func StatusFor(err error) int {
	var nf genapi.ErrFeatureNotFound
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	var wk genapi.ErrWrongKind
	if errors.As(err, &wk) {
		return http.StatusBadRequest
	}
	c, ok := status.Of(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch c {
	case status.InvalidParameter:
		return http.StatusBadRequest
	case status.NotSupported:
		return http.StatusNotImplemented
	case status.Busy, status.NotAvailable:
		return http.StatusConflict
	case status.NoDataAvailable:
		return http.StatusNotFound
	case status.Exhausted:
		return http.StatusServiceUnavailable
	case status.AccessDenied:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}

// Error replies to the request with err and the status StatusFor gives it
func Error(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), StatusFor(err))
}

// GetFloat calls a float-getting function and returns the response
// as json {'f64': value}
func GetFloat(fcn func() (float64, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := HumanPayload{T: types.Float64, Float: f}
		hp.EncodeAndRespond(w, r)
	}
}

// SetFloat parses a JSON input of {'f64': value} and
// calls fcn with it
func SetFloat(fcn func(float64) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := FloatT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.F64)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetInt calls an int-getting function and returns the response
// as json {'int': value}
func GetInt(fcn func() (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := HumanPayload{T: types.Int, Int: i}
		hp.EncodeAndRespond(w, r)
	}
}

// SetInt parses a JSON input of {'int': value} and
// calls fcn with it
func SetInt(fcn func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := IntT{}
		err := json.NewDecoder(r.Body).Decode(&f)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(f.Int)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetString calls a string-getting function and returns the response
// as json {'str': value}
func GetString(fcn func() (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := HumanPayload{T: types.String, String: s}
		hp.EncodeAndRespond(w, r)
	}
}

// SetString parses a JSON input of {'str': value} and
// calls fcn with it
func SetString(fcn func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := StrT{}
		err := json.NewDecoder(r.Body).Decode(&s)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(s.Str)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetBool calls a bool-getting function and returns the response
// as json {'bool': value}
func GetBool(fcn func() (bool, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b, err := fcn()
		if err != nil {
			Error(w, err)
			return
		}
		hp := HumanPayload{T: types.Bool, Bool: b}
		hp.EncodeAndRespond(w, r)
	}
}

// SetBool parses a JSON input of {'bool': value} and
// calls fcn with it
func SetBool(fcn func(bool) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b := BoolT{}
		err := json.NewDecoder(r.Body).Decode(&b)
		defer r.Body.Close()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		err = fcn(b.Bool)
		if err != nil {
			Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
