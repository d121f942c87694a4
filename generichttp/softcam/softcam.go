// Package softcam provides an HTTP interface to the emulated camera: its
// features and registers, the latest frame of each streaming channel, a
// websocket live view and the acquisition, user set and reset controls
package softcam

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"go/types"
	"image/jpeg"
	"image/png"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.jpl.nasa.gov/bdube/softgev/device"
	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/generichttp"
	"github.jpl.nasa.gov/bdube/softgev/imgrec"
	"github.jpl.nasa.gov/bdube/softgev/server"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/status"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

// HTTPCamera wraps a device and the drivers of its sources in an HTTP interface
type HTTPCamera struct {
	dev      *device.Device
	drivers  map[int]*stream.Driver
	rec      *imgrec.Recorder
	upgrader websocket.Upgrader

	RouteTable generichttp.RouteTable
}

// NewHTTPCamera returns a new HTTP wrapper.  rec may be nil, in which case
// the autowrite routes are not bound.
func NewHTTPCamera(d *device.Device, drivers []*stream.Driver, rec *imgrec.Recorder) HTTPCamera {
	h := HTTPCamera{
		dev:     d,
		drivers: make(map[int]*stream.Driver),
		rec:     rec,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, drv := range drivers {
		h.drivers[drv.Channel().ID()] = drv
	}
	rt := generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/features"}:          h.ListFeatures,
		{Method: http.MethodGet, Path: "/feature"}:           h.GetFeature,
		{Method: http.MethodPost, Path: "/feature"}:          h.SetFeature,
		{Method: http.MethodPost, Path: "/feature/execute"}:  h.ExecuteFeature,
		{Method: http.MethodGet, Path: "/register"}:          h.ReadRegister,
		{Method: http.MethodPost, Path: "/register"}:         h.WriteRegister,
		{Method: http.MethodGet, Path: "/registers"}:         h.DumpRegisters,
		{Method: http.MethodGet, Path: "/image"}:             h.GetImage,
		{Method: http.MethodGet, Path: "/live"}:              h.Live,
		{Method: http.MethodGet, Path: "/acquisition"}:       h.GetAcquiring,
		{Method: http.MethodPost, Path: "/acquisition/start"}: h.StartAcquisition,
		{Method: http.MethodPost, Path: "/acquisition/stop"}: h.StopAcquisition,
		{Method: http.MethodGet, Path: "/stats"}:             h.Stats,
		{Method: http.MethodGet, Path: "/userset"}:           h.SavedUserSets,
		{Method: http.MethodPost, Path: "/userset/save"}:     generichttp.SetInt(d.SaveUserSet),
		{Method: http.MethodPost, Path: "/userset/load"}:     generichttp.SetInt(d.LoadUserSet),
		{Method: http.MethodPost, Path: "/reset"}:            h.Reset,
		{Method: http.MethodGet, Path: "/application"}:       generichttp.GetString(h.application),
	}
	h.RouteTable = rt
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/autowrite/file"}] = h.GetRecordedFile
	}
	return h
}

// RT satisfies generichttp.HTTPer
func (h HTTPCamera) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPCamera) application() (string, error) {
	return h.dev.Application(), nil
}

// channel parses the channel query parameter, 0 if absent
func channel(r *http.Request) (int, error) {
	s := r.URL.Query().Get("channel")
	if s == "" {
		return 0, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, status.Errorf(status.InvalidParameter, "channel %q is not a number", s)
	}
	return id, nil
}

func (h HTTPCamera) driver(r *http.Request) (*stream.Driver, error) {
	id, err := channel(r)
	if err != nil {
		return nil, err
	}
	drv, ok := h.drivers[id]
	if !ok {
		return nil, status.Errorf(status.InvalidParameter, "no streaming channel %d", id)
	}
	return drv, nil
}

func respondJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// ListFeatures returns every feature, or those of one category, as JSON
func (h HTTPCamera) ListFeatures(w http.ResponseWriter, r *http.Request) {
	cat := r.URL.Query().Get("category")
	tree := h.dev.Tree()
	out := []genapi.Info{}
	for _, f := range tree.Features() {
		if cat != "" && f.Category != cat {
			continue
		}
		info, err := tree.Info(f.Name)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		out = append(out, info)
	}
	respondJSON(w, out)
}

// GetFeature returns the feature named by the name query parameter
func (h HTTPCamera) GetFeature(w http.ResponseWriter, r *http.Request) {
	info, err := h.dev.Tree().Info(r.URL.Query().Get("name"))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, info)
}

// featureValue is the body of a feature write
type featureValue struct {
	Value interface{} `json:"value"`
}

// SetFeature sets the feature named by the name query parameter from a
// JSON body {"value": v}
func (h HTTPCamera) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	fv := featureValue{}
	err := json.NewDecoder(r.Body).Decode(&fv)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.dev.Tree().SetValue(name, fv.Value); err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ExecuteFeature executes the command named by the name query parameter
func (h HTTPCamera) ExecuteFeature(w http.ResponseWriter, r *http.Request) {
	if err := h.dev.Tree().Execute(r.URL.Query().Get("name")); err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// registerData is a raw register access, data hex encoded
type registerData struct {
	Addr string `json:"addr"`
	Data string `json:"data"`
}

func parseAddr(s string) (uint32, error) {
	a, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, status.Errorf(status.InvalidParameter, "address %q: %v", s, err)
	}
	return uint32(a), nil
}

// ReadRegister reads len bytes (default 4) at the addr query parameter
func (h HTTPCamera) ReadRegister(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr, err := parseAddr(q.Get("addr"))
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	n := 4
	if s := q.Get("len"); s != "" {
		n, err = strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, fmt.Sprintf("bad length %q", s), http.StatusBadRequest)
			return
		}
	}
	b, err := h.dev.Registers().Read(addr, n)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	respondJSON(w, registerData{Addr: fmt.Sprintf("0x%08X", addr), Data: hex.EncodeToString(b)})
}

// WriteRegister writes a JSON body {"addr": "0x...", "data": "hex"}
func (h HTTPCamera) WriteRegister(w http.ResponseWriter, r *http.Request) {
	rd := registerData{}
	err := json.NewDecoder(r.Body).Decode(&rd)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	addr, err := parseAddr(rd.Addr)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	b, err := hex.DecodeString(rd.Data)
	if err != nil || len(b) == 0 {
		http.Error(w, fmt.Sprintf("bad register data %q", rd.Data), http.StatusBadRequest)
		return
	}
	if err := h.dev.Registers().Write(addr, b); err != nil {
		generichttp.Error(w, err)
		return
	}
	h.dev.Tree().InvalidateAll()
	w.WriteHeader(http.StatusOK)
}

// DumpRegisters lists the register map as text
func (h HTTPCamera) DumpRegisters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := h.dev.DumpRegisters(w); err != nil {
		log.Printf("dumping registers: %v\n", err)
	}
}

// GetImage returns the latest frame of a channel.
//
// the channel is given by the channel query parameter, 0 if absent.  The
// format is given by the fmt query parameter, jpg (default), png or fits.
// A multi-part frame is shown by its first part as jpg or png.  When the
// recorder is active, fits frames are also written to disk.
func (h HTTPCamera) GetImage(w http.ResponseWriter, r *http.Request) {
	drv, err := h.driver(r)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	f, _ := drv.Mailbox().Latest()
	if f == nil {
		generichttp.Error(w, status.Errorf(status.NoDataAvailable, "channel %d has not delivered a frame", drv.Channel().ID()))
		return
	}
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg", "png":
		im, err := imgrec.ToImage(f.Image())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if format == "jpg" {
			w.Header().Set("Content-Type", "image/jpeg")
			err = jpeg.Encode(w, im, nil)
		} else {
			w.Header().Set("Content-Type", "image/png")
			err = png.Encode(w, im)
		}
		if err != nil {
			log.Printf("encoding %s: %v\n", format, err)
		}
	case "fits":
		if h.rec != nil && h.rec.Active() {
			if fn, err := h.rec.Save(f, nil); err != nil {
				log.Printf("recording %s: %v\n", fn, err)
			}
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		if err := imgrec.WriteFits(w, nil, f); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, fmt.Sprintf("unknown image format %q", format), http.StatusBadRequest)
	}
}

// GetRecordedFile serves a file the recorder wrote today, named by the
// name query parameter
func (h HTTPCamera) GetRecordedFile(w http.ResponseWriter, r *http.Request) {
	server.ReplyWithFile(w, r, r.URL.Query().Get("name"), h.rec.Folder())
}

// GetAcquiring returns whether a channel is acquiring as {"bool": b}
func (h HTTPCamera) GetAcquiring(w http.ResponseWriter, r *http.Request) {
	id, err := channel(r)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	hp := generichttp.HumanPayload{T: types.Bool, Bool: h.dev.Acquiring(id)}
	hp.EncodeAndRespond(w, r)
}

// StartAcquisition starts acquisition on a channel
func (h HTTPCamera) StartAcquisition(w http.ResponseWriter, r *http.Request) {
	id, err := channel(r)
	if err == nil {
		err = h.dev.StartAcquisition(id)
	}
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// StopAcquisition stops acquisition on a channel
func (h HTTPCamera) StopAcquisition(w http.ResponseWriter, r *http.Request) {
	id, err := channel(r)
	if err == nil {
		err = h.dev.StopAcquisition(id)
	}
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ChannelStats are the counters of one streaming channel
type ChannelStats struct {
	Channel   int                 `json:"channel"`
	Source    source.Stats        `json:"source"`
	Mailbox   stream.MailboxStats `json:"mailbox"`
	Errors    uint64              `json:"errors"`
	Acquiring bool                `json:"acquiring"`
}

// ChannelStats returns the counters of every channel
func (h HTTPCamera) ChannelStats() []ChannelStats {
	var out []ChannelStats
	for _, ch := range h.dev.Sources() {
		cs := ChannelStats{Channel: ch.ID(), Source: ch.Stats(), Acquiring: h.dev.Acquiring(ch.ID())}
		if drv, ok := h.drivers[ch.ID()]; ok {
			cs.Mailbox = drv.Mailbox().Stats()
			cs.Errors = drv.Errors()
		}
		out = append(out, cs)
	}
	return out
}

// Stats returns the counters of every channel as JSON
func (h HTTPCamera) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.ChannelStats())
}

// SavedUserSets lists the user sets holding data
func (h HTTPCamera) SavedUserSets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.dev.UserSets().Saved())
}

// Reset resets the device.  The body is {"str": "full"} or {"str": "network"}.
func (h HTTPCamera) Reset(w http.ResponseWriter, r *http.Request) {
	s := generichttp.StrT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch strings.ToLower(s.Str) {
	case "full":
		err = h.dev.ResetFull()
	case "network":
		h.dev.ResetNetwork()
	default:
		http.Error(w, fmt.Sprintf("unknown reset kind %q", s.Str), http.StatusBadRequest)
		return
	}
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
