package middleware

import (
    "context"
    "errors"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/medhome/internal/model"
    "github.com/iliyamo/medhome/internal/service"
)

// Authorizer checks that a session token belongs to a username.
type Authorizer interface {
    Authorize(ctx context.Context, token, username string) (*model.User, error)
}

// RequireOwner returns a middleware that admits a request only when its
// session token belongs to the user named by the path parameter param.  A
// missing token, an unknown or expired token and a token of another user
// all receive the same 403 body.  On success the user is stored in the
// context for CurrentUser.
func RequireOwner(authz Authorizer, param string, log *zap.Logger) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
            defer cancel()

            u, err := authz.Authorize(ctx, TokenFromRequest(c), c.Param(param))
            if err != nil {
                if errors.Is(err, service.ErrForbidden) {
                    return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
                }
                log.Error("authorize failed", zap.String("path", c.Request().URL.Path), zap.Error(err))
                return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "storage unavailable"})
            }
            c.Set(userKey, u)
            return next(c)
        }
    }
}
