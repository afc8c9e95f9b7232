package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass bearer authentication.
var publicPaths = map[string]bool{
	"/health":            true,
	"/api/v1/auth/login": true,
	"/api/v1/health":     true,
}

// AuthSkipper is the Skipper for JWTConfig.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()] || publicPaths[c.Request().URL.Path]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
