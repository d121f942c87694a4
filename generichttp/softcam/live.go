package softcam

import (
	"bytes"
	"context"
	"image/jpeg"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.jpl.nasa.gov/bdube/softgev/generichttp"
	"github.jpl.nasa.gov/bdube/softgev/imgrec"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = (pongWait * 9) / 10

	// LiveQuality is the JPEG quality of live view frames
	LiveQuality = 75
)

// wsConn serializes writes to a websocket
type wsConn struct {
	mu sync.Mutex
	c  *websocket.Conn
}

func (w *wsConn) write(typ int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(typ, b)
}

// Live upgrades to a websocket and sends every frame published on a channel
// as a binary JPEG message.  Frames published while a message is being
// written are skipped.
func (h HTTPCamera) Live(w http.ResponseWriter, r *http.Request) {
	drv, err := h.driver(r)
	if err != nil {
		generichttp.Error(w, err)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live view upgrade: %v\n", err)
		return
	}
	defer conn.Close()
	ws := &wsConn{c: conn}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	go func() {
		tick := time.NewTicker(pingEvery)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if err := ws.write(websocket.PingMessage, nil); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	mb := drv.Mailbox()
	_, seq := mb.Latest()
	var buf bytes.Buffer
	for {
		f, s, err := mb.Next(ctx, seq)
		if err != nil {
			return
		}
		seq = s
		im, err := imgrec.ToImage(f.Image())
		if err != nil {
			log.Printf("live view channel %d: %v\n", f.Channel, err)
			continue
		}
		buf.Reset()
		if err := jpeg.Encode(&buf, im, &jpeg.Options{Quality: LiveQuality}); err != nil {
			log.Printf("live view channel %d: %v\n", f.Channel, err)
			continue
		}
		if err := ws.write(websocket.BinaryMessage, buf.Bytes()); err != nil {
			return
		}
	}
}
