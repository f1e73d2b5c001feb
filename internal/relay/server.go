package relay

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/websocket"

	"github.com/tagops/visitflow/internal/metrics"
	"github.com/tagops/visitflow/internal/repository"
)

// Server exposes the viewer-facing side of the relay: the websocket push
// channel and the point-in-time snapshot used to seed a fresh view.
type Server struct{ e *echo.Echo }

func NewServer(hub *Hub, visits repository.VisitsRepository) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	e.GET("/ws", wsHandler(hub))
	e.GET("/display/state", snapshotHandler(visits))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error            { return s.e.Start(addr) }
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
func (s *Server) Handler() http.Handler              { return s.e }

// wsHandler registers the connection under its (site, room) group and holds it
// open until the viewer hangs up. Inbound frames are drained and ignored.
func wsHandler(hub *Hub) echo.HandlerFunc {
	return func(c echo.Context) error {
		siteID := c.QueryParam("siteId")
		roomID := c.QueryParam("roomId")
		if siteID == "" || roomID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "siteId and roomId are required"})
		}
		group := GroupKey(siteID, roomID)

		h := websocket.Handler(func(conn *websocket.Conn) {
			peer := NewPeer(conn)
			hub.Add(group, peer)
			metrics.ViewerConnections.Inc()
			defer func() {
				hub.Remove(group, peer)
				metrics.ViewerConnections.Dec()
				_ = conn.Close()
			}()

			buf := make([]byte, 512)
			for {
				if _, err := conn.Read(buf); err != nil {
					return
				}
			}
		})
		h.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func snapshotHandler(visits repository.VisitsRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		siteID := c.QueryParam("siteId")
		roomID := c.QueryParam("roomId")
		if siteID == "" || roomID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "siteId and roomId are required"})
		}

		entries, err := visits.ActiveEntries(c.Request().Context(), siteID, roomID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}
		return c.JSON(http.StatusOK, entries)
	}
}
