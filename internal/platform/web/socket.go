package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/vovakirdan/pixelbox/internal/core"
	"github.com/vovakirdan/pixelbox/internal/game"
)

const (
	// writeBufferSize fits a base64 64x64 frame in one websocket frame.
	writeBufferSize = 32 << 10
	commandTimeout  = 10 * time.Second
)

// Socket is one websocket viewer.
type Socket struct {
	srv  *Server
	req  *http.Request
	conn net.Conn
	wmu  sync.Mutex // Serializes frames written by the reader and the writer

	// write channel:
	q    chan Update
	done chan struct{}
}

// Update is a message pushed to viewers.
type Update struct {
	Type    string `json:"t"` // "frame" or "error"
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Frame   int    `json:"frame"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Pixels  []byte `json:"pixels,omitempty"` // RGBA rows, base64 in JSON
	Error   string `json:"error,omitempty"`
}

// CommandRequest is a message sent by a viewer.
type CommandRequest struct {
	Command string          `json:"c"`
	Args    json.RawMessage `json:"a"`
}

func (s *Server) handleSocket(rw http.ResponseWriter, req *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(req, rw)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", req.RemoteAddr, "error", err)
		return
	}

	// create the Socket to handle bidirectional communication:
	k := newSocket(s, req, conn)
	s.appendSocket(k)
	s.logger.Debug("viewer connected", "remote", req.RemoteAddr)

	// start by sending the current frame to this new socket:
	k.send(s.frameUpdate(core.NewSurfaceFor(s.ctrl.Config())))
}

func (s *Server) appendSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()
	s.sockets = append(s.sockets, k)
}

func (s *Server) removeSocket(k *Socket) {
	s.socketsRw.Lock()
	defer s.socketsRw.Unlock()

	for i, sk := range s.sockets {
		if sk == k {
			s.sockets = append(s.sockets[:i], s.sockets[i+1:]...)
			break
		}
	}
}

func (s *Server) closeSockets() {
	s.socketsRw.RLock()
	sockets := append([]*Socket(nil), s.sockets...)
	s.socketsRw.RUnlock()

	for _, k := range sockets {
		_ = k.conn.Close()
	}
}

// SocketCount returns the number of connected viewers.
func (s *Server) SocketCount() int {
	s.socketsRw.RLock()
	defer s.socketsRw.RUnlock()
	return len(s.sockets)
}

// broadcastLoop pushes a frame to every viewer at the frame rate.
func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ctrl.Config().Interval())
	defer ticker.Stop()

	frame := core.NewSurfaceFor(s.ctrl.Config())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.broadcast(frame)
		}
	}
}

func (s *Server) broadcast(frame *core.Surface) {
	s.socketsRw.RLock()
	sockets := append([]*Socket(nil), s.sockets...)
	s.socketsRw.RUnlock()
	if len(sockets) == 0 {
		return
	}

	u := s.frameUpdate(frame)
	for _, k := range sockets {
		k.send(u)
	}
}

// frameUpdate snapshots the controller into frame.
func (s *Server) frameUpdate(frame *core.Surface) Update {
	s.ctrl.SnapshotInto(frame)
	st := s.statusResponse()
	return Update{
		Type:    "frame",
		Status:  st.Status,
		Running: st.Running,
		Frame:   st.Frame,
		Width:   frame.Width(),
		Height:  frame.Height(),
		Pixels:  append([]byte(nil), frame.Pix()...),
	}
}

func newSocket(s *Server, req *http.Request, conn net.Conn) *Socket {
	k := &Socket{
		srv:  s,
		req:  req,
		conn: conn,
		q:    make(chan Update, 4),
		done: make(chan struct{}),
	}

	go k.readHandler()
	go k.writeHandler()

	return k
}

// send queues u, dropping it when the viewer is too slow to keep up.
func (k *Socket) send(u Update) {
	select {
	case k.q <- u:
	case <-k.done:
	default:
	}
}

func (k *Socket) readHandler() {
	// the reader is in control of the lifetime of the socket:
	defer func() {
		close(k.done)
		_ = k.conn.Close()

		// remove self from sockets array:
		k.srv.removeSocket(k)
		k.srv.logger.Debug("viewer disconnected", "remote", k.req.RemoteAddr)
	}()

	var (
		r       = wsutil.NewReader(k.conn, ws.StateServerSide)
		decoder = json.NewDecoder(r)
		// control frames (ping, close) are answered here:
		controlHandler = wsutil.ControlFrameHandler(lockedWriter{k}, ws.StateServerSide)
	)

	for {
		hdr, err := r.NextFrame()
		if err != nil {
			return
		}
		if hdr.OpCode.IsControl() {
			if err := controlHandler(hdr, r); err != nil {
				return
			}
			continue
		}

		if hdr.OpCode == ws.OpText {
			var creq CommandRequest
			if err := decoder.Decode(&creq); err != nil {
				k.send(Update{Type: "error", Error: fmt.Sprintf("bad command: %v", err)})
			} else if err := k.execute(creq); err != nil {
				k.send(Update{Type: "error", Error: err.Error()})
			}
			decoder = json.NewDecoder(r)
		}

		if err := r.Discard(); err != nil {
			return
		}
	}
}

// execute runs a viewer command: "stop", "play" with a sample id, or "game"
// with a definition.
func (k *Socket) execute(creq CommandRequest) error {
	s := k.srv
	switch creq.Command {
	case "stop":
		s.ctrl.Stop()
		return nil

	case "play":
		var id string
		if len(creq.Args) > 0 {
			if err := json.Unmarshal(creq.Args, &id); err != nil {
				return fmt.Errorf("play: %w", err)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		res, err := game.LoadWithFallback(ctx, s.cfg.Loader, id)
		if err != nil {
			s.ctrl.ReportError(err)
			return err
		}
		return s.ctrl.Start(&res.Definition, s.surface)

	case "game":
		def, err := game.Parse(creq.Args)
		if err != nil {
			return err
		}
		return s.ctrl.Start(&def, s.surface)
	}
	return fmt.Errorf("unknown command %q", creq.Command)
}

func (k *Socket) writeHandler() {
	var (
		w       = wsutil.NewWriterSize(k.conn, ws.StateServerSide, ws.OpText, writeBufferSize)
		encoder = json.NewEncoder(w)
	)

	// wait for updates on the channel:
	for {
		select {
		case <-k.done:
			return
		case u := <-k.q:
			k.wmu.Lock()
			err := encoder.Encode(&u)
			if err == nil {
				err = w.Flush()
			}
			k.wmu.Unlock()
			if err != nil {
				_ = k.conn.Close()
				return
			}
		}
	}
}

// lockedWriter writes control replies without interleaving with updates.
type lockedWriter struct{ k *Socket }

func (l lockedWriter) Write(p []byte) (int, error) {
	l.k.wmu.Lock()
	defer l.k.wmu.Unlock()
	return l.k.conn.Write(p)
}
