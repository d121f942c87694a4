package softcam

import (
	"bytes"
	"context"
	"encoding/json"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.jpl.nasa.gov/bdube/softgev/device"
	"github.jpl.nasa.gov/bdube/softgev/genapi"
	"github.jpl.nasa.gov/bdube/softgev/imgrec"
	"github.jpl.nasa.gov/bdube/softgev/source"
	"github.jpl.nasa.gov/bdube/softgev/stream"
)

func newCamera(t *testing.T, rec *imgrec.Recorder) (HTTPCamera, *httptest.Server) {
	d, err := device.New(device.Config{Sources: []device.SourceConfig{{Width: 64, Height: 4, FPS: source.FPSMax}}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	drivers, err := stream.BindDevice(d)
	if err != nil {
		t.Fatal(err)
	}
	h := NewHTTPCamera(d, drivers, rec)
	if err := h.InjectMetrics(prometheus.NewRegistry()); err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	h.RT().Bind(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		d.StopAcquisition(0)
	})
	return h, srv
}

func post(t *testing.T, url, body string) *http.Response {
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func get(t *testing.T, url string) *http.Response {
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestFeatures(t *testing.T) {
	_, srv := newCamera(t, nil)

	resp := post(t, srv.URL+"/feature?name="+device.SampleIntegerName, `{"value": 42}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("setting the sample integer returned %d", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/feature?name="+device.SampleIntegerName)
	info := genapi.Info{}
	err := json.NewDecoder(resp.Body).Decode(&info)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := info.Value.(float64); !ok || v != 42 {
		t.Errorf("expected value 42 got %v", info.Value)
	}

	resp = get(t, srv.URL+"/register?addr=0x10000040")
	rd := registerData{}
	json.NewDecoder(resp.Body).Decode(&rd)
	resp.Body.Close()
	if rd.Data != "0000002a" {
		t.Errorf("expected register data 0000002a got %q", rd.Data)
	}

	resp = get(t, srv.URL+"/features?category="+device.SampleCategory)
	var infos []genapi.Info
	json.NewDecoder(resp.Body).Decode(&infos)
	resp.Body.Close()
	if len(infos) == 0 {
		t.Fatal("no features in the sample category")
	}
	for _, i := range infos {
		if i.Category != device.SampleCategory {
			t.Errorf("feature %s of category %s listed", i.Name, i.Category)
		}
	}

	resp = get(t, srv.URL+"/feature?name=NoSuchFeature")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for an unknown feature got %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/feature?name="+device.SampleIntegerName, `{"value": 20000}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an out of range value got %d", resp.StatusCode)
	}
}

func TestWriteRegister(t *testing.T) {
	h, srv := newCamera(t, nil)
	resp := post(t, srv.URL+"/register", `{"addr":"0x10000040","data":"00000007"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("register write returned %d", resp.StatusCode)
	}
	v, err := h.dev.Tree().GetInt(device.SampleIntegerName)
	if err != nil || v != 7 {
		t.Errorf("expected the sample integer to read 7 got %d (%v)", v, err)
	}

	resp = post(t, srv.URL+"/register", `{"addr":"0x0FFFFFF0","data":"00000007"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 writing an unmapped address got %d", resp.StatusCode)
	}
}

func waitFrame(t *testing.T, h HTTPCamera) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := h.drivers[0].Mailbox().Next(ctx, 0); err != nil {
		t.Fatal(err)
	}
}

func TestAcquisitionAndImage(t *testing.T) {
	h, srv := newCamera(t, nil)

	resp := get(t, srv.URL+"/image")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 before the first frame got %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/acquisition/start?channel=0", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("acquisition start returned %d", resp.StatusCode)
	}
	waitFrame(t, h)

	resp = get(t, srv.URL+"/acquisition?channel=0")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"bool":true}` {
		t.Errorf("expected acquiring true got %s", body)
	}

	resp = get(t, srv.URL+"/image?fmt=jpg")
	im, err := jpeg.Decode(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatal(err)
	}
	if b := im.Bounds(); b.Dx() != 64 || b.Dy() != 4 {
		t.Errorf("expected a 64x4 image got %v", b)
	}

	resp = get(t, srv.URL+"/image?fmt=fits")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !bytes.HasPrefix(body, []byte("SIMPLE  =")) {
		t.Errorf("fits response does not start with SIMPLE")
	}

	resp = get(t, srv.URL+"/image?channel=3")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown channel got %d", resp.StatusCode)
	}

	resp = post(t, srv.URL+"/acquisition/stop?channel=0", "")
	resp.Body.Close()
	if h.dev.Acquiring(0) {
		t.Error("still acquiring after stop")
	}

	resp = get(t, srv.URL+"/stats")
	var stats []ChannelStats
	json.NewDecoder(resp.Body).Decode(&stats)
	resp.Body.Close()
	if len(stats) != 1 || stats[0].Source.Delivered == 0 || stats[0].Mailbox.Published == 0 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp = get(t, srv.URL+"/metrics")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `softgev_frames_delivered_total{channel="0"}`) {
		t.Errorf("metrics missing the delivered counter:\n%s", body)
	}
}

func TestRecorderRoutes(t *testing.T) {
	rec := &imgrec.Recorder{Root: t.TempDir(), Prefix: "cam", Enabled: true}
	h, srv := newCamera(t, rec)
	if err := h.dev.StartAcquisition(0); err != nil {
		t.Fatal(err)
	}
	waitFrame(t, h)
	resp := get(t, srv.URL+"/image?fmt=fits")
	resp.Body.Close()

	resp = get(t, srv.URL+"/autowrite/file?name=cam000000.fits")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !bytes.HasPrefix(body, []byte("SIMPLE  =")) {
		t.Errorf("recorded file not served, code %d", resp.StatusCode)
	}

	resp = get(t, srv.URL+"/autowrite/prefix")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"str":"cam"}` {
		t.Errorf("unexpected prefix payload %s", body)
	}
}

func TestUserSetsAndReset(t *testing.T) {
	h, srv := newCamera(t, nil)
	tree := h.dev.Tree()
	tree.SetInt(device.SampleIntegerName, 5)
	resp := post(t, srv.URL+"/userset/save", `{"int":1}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("user set save returned %d", resp.StatusCode)
	}
	tree.SetInt(device.SampleIntegerName, 9)
	resp = post(t, srv.URL+"/userset/load", `{"int":1}`)
	resp.Body.Close()
	if v, _ := tree.GetInt(device.SampleIntegerName); v != 5 {
		t.Errorf("expected 5 after loading user set 1 got %d", v)
	}

	resp = get(t, srv.URL+"/userset")
	var saved []int
	json.NewDecoder(resp.Body).Decode(&saved)
	resp.Body.Close()
	if len(saved) != 2 || saved[0] != 0 || saved[1] != 1 {
		t.Errorf("expected saved user sets [0 1] got %v", saved)
	}

	resp = post(t, srv.URL+"/reset", `{"str":"bogus"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for an unknown reset got %d", resp.StatusCode)
	}
	resp = post(t, srv.URL+"/reset", `{"str":"network"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("network reset returned %d", resp.StatusCode)
	}
}

func TestLive(t *testing.T) {
	h, srv := newCamera(t, nil)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/live?channel=0"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if err := h.dev.StartAcquisition(0); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	typ, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.BinaryMessage {
		t.Errorf("expected a binary message got type %d", typ)
	}
	if _, err := jpeg.Decode(bytes.NewReader(msg)); err != nil {
		t.Errorf("live frame is not a jpeg: %v", err)
	}
}
