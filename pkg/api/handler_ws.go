package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and hands them to
// the event hub. Blocks until the client disconnects.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.cfg.Hub == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "event stream not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The listener binds loopback only; clients are local tools,
		// not browsers with meaningful origins.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	s.cfg.Hub.HandleConnection(c.Request().Context(), conn)
	return nil
}
