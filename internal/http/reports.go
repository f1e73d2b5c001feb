package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/tagops/visitflow/internal/repository"
)

// listEventsHandler serves the event audit log from ClickHouse, filtered by
// site/room/name.
func listEventsHandler(archive repository.ArchiveRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		limit, _ := strconv.Atoi(c.QueryParam("limit"))
		offset, _ := strconv.Atoi(c.QueryParam("offset"))

		rows, err := archive.ListEvents(
			c.Request().Context(),
			c.QueryParam("siteId"),
			c.QueryParam("roomId"),
			c.QueryParam("name"),
			limit,
			offset,
		)
		if err != nil {
			log.Errorf("list events failed: %v", err)
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":  len(rows),
			"events": rows,
		})
	}
}
