package common

import "github.com/labstack/echo/v4"

// SetNoCache prevents clients from caching responses that change with the
// gallery contents.
func SetNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
