package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
)

func LoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			path := req.URL.Path
			if req.URL.RawQuery != "" {
				path += "?" + req.URL.RawQuery
			}

			ev := log.Info()
			if res.Status >= http.StatusInternalServerError {
				ev = log.Error()
			} else if res.Status >= http.StatusBadRequest {
				ev = log.Warn()
			}
			ev.Str("method", req.Method).
				Str("path", path).
				Int("status", res.Status).
				Dur("latency", time.Since(start)).
				Str("ip", c.RealIP()).
				Msg(http.StatusText(res.Status))

			return nil
		}
	}
}

// Recover turns handler panics into 500 responses and logs them with their stack.
func Recover() echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:       4 << 10,
		DisableStackAll: true,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Error().Err(err).
				Str("path", c.Request().URL.Path).
				Bytes("stack", stack).
				Msg("Recovered from panic")
			return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
		},
	})
}
