package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/eudrsat/internal/core/domain"
	"github.com/samirrijal/eudrsat/internal/core/usecases"
	"github.com/samirrijal/eudrsat/internal/pkg/metrics"
	"github.com/samirrijal/eudrsat/internal/pkg/portals"
)

// wsMessage is sent from client to server.
//
//	{"action":"subscribe","session":"abc"}   relay cycle events of a session ("" = all)
//	{"action":"fetch","lat":43.26,"lon":-2.93} run a cycle and stream its UI steps
type wsMessage struct {
	Action  string          `json:"action"`
	Session string          `json:"session"`
	Lat     *float64        `json:"lat"`
	Lon     *float64        `json:"lon"`
	GeoJSON json.RawMessage `json:"geojson"`
}

// wsOut is every server-to-client frame.
type wsOut struct {
	Type        string                  `json:"type"`
	Enabled     *bool                   `json:"enabled,omitempty"`
	Event       *domain.CycleEvent      `json:"event,omitempty"`
	Before      *imageView              `json:"before,omitempty"`
	Now         *imageView              `json:"now,omitempty"`
	Links       *domain.CopernicusLinks `json:"links,omitempty"`
	OpenDelayMs int64                   `json:"open_delay_ms,omitempty"`
	Result      *imageryResponse        `json:"result,omitempty"`
	Message     string                  `json:"message,omitempty"`
}

// linksFrame tells the client how long to wait between opening the two
// portal links.
func linksFrame(links domain.CopernicusLinks) wsOut {
	return wsOut{Type: "links", Links: &links, OpenDelayMs: portals.OpenDelay.Milliseconds()}
}

// wsConn serialises writes to one connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) send(v wsOut) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

// wsPresenter drives a websocket client through a fetch cycle.
type wsPresenter struct{ out *wsConn }

func (p wsPresenter) SetControlsEnabled(enabled bool) {
	_ = p.out.send(wsOut{Type: "controls", Enabled: &enabled})
}

func (p wsPresenter) ShowLoading() { _ = p.out.send(wsOut{Type: "loading"}) }

func (p wsPresenter) Render(before, now domain.ImageSource) {
	_ = p.out.send(wsOut{Type: "render", Before: viewImage(&before), Now: viewImage(&now)})
}

func (p wsPresenter) ShowLinks(links domain.CopernicusLinks) {
	_ = p.out.send(linksFrame(links))
}

func (p wsPresenter) ShowError(message string) {
	_ = p.out.send(wsOut{Type: "error", Message: message})
}

// WebSocketHandler relays fetch-cycle events to connected clients and runs
// fetch cycles on their behalf. The ?session= query parameter subscribes on
// connect and names the session fetches run on.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		log := slog.With("remote", c.RemoteAddr().String())
		log.Info("ws client connected")
		defer log.Info("ws client disconnected")

		out := &wsConn{conn: c}
		session, _ := c.Locals("session").(string)

		// One event subscription per connection; re-subscribing replaces it.
		var subCancel context.CancelFunc
		subscribe := func(sessionID string) {
			if deps.Events == nil {
				_ = out.send(wsOut{Type: "error", Message: "event relay not available"})
				return
			}
			if subCancel != nil {
				subCancel()
			}
			var subCtx context.Context
			subCtx, subCancel = context.WithCancel(ctx)
			err := deps.Events.SubscribeCycleEvents(subCtx, sessionID, func(_ context.Context, ev *domain.CycleEvent) error {
				return out.send(wsOut{Type: "event", Event: ev})
			})
			if err != nil {
				_ = out.send(wsOut{Type: "error", Message: "subscribe failed"})
				log.Warn("ws subscribe failed", "error", err)
				return
			}
			_ = out.send(wsOut{Type: "subscribed", Message: sessionID})
		}
		if session != "" {
			subscribe(session)
		}

		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := out.ping(); err != nil {
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		for {
			_, raw, err := c.ReadMessage()
			if err != nil {
				return
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = out.send(wsOut{Type: "error", Message: "invalid JSON"})
				continue
			}

			switch m.Action {
			case "subscribe":
				subscribe(m.Session)
			case "unsubscribe":
				if subCancel != nil {
					subCancel()
					subCancel = nil
				}
				_ = out.send(wsOut{Type: "unsubscribed"})
			case "fetch":
				if m.Session != "" {
					session = m.Session
				}
				in := usecases.AreaInput{}
				if len(m.GeoJSON) > 0 && string(m.GeoJSON) != "null" {
					in.GeoJSON = m.GeoJSON
				}
				if m.Lat != nil && m.Lon != nil {
					in.Point = &domain.GeoPoint{Lat: *m.Lat, Lon: *m.Lon}
				}
				// Cycles run synchronously: controls stay disabled until
				// the cycle finishes, as on the page.
				_, res, err := deps.Areas.Submit(ctx, session, in, wsPresenter{out: out})
				if err != nil {
					continue
				}
				if res != nil {
					session = res.SessionID
					r := newImageryResponse(res)
					_ = out.send(wsOut{Type: "result", Result: &r})
				}
			default:
				_ = out.send(wsOut{Type: "error", Message: "unknown action: " + m.Action})
			}
		}
	}
}
