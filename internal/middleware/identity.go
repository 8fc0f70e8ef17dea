package middleware

// identity.go holds the helpers shared across middleware files: reading the
// session token from a request and fetching the authenticated user that
// RequireOwner stored in the Echo context.

import (
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/medhome/internal/model"
)

// SessionCookie is the cookie carrying the session token.
const SessionCookie = "sessionId"

// userKey is the Echo context key for the authenticated *model.User.
const userKey = "user"

// TokenFromRequest returns the session token from the sessionId cookie or,
// failing that, from an "Authorization: Bearer" header.  It returns "" when
// neither is present.
func TokenFromRequest(c echo.Context) string {
    if ck, err := c.Cookie(SessionCookie); err == nil && ck.Value != "" {
        return ck.Value
    }
    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    if strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    return ""
}

// CurrentUser returns the user authenticated for this request, or nil.
func CurrentUser(c echo.Context) *model.User {
    u, _ := c.Get(userKey).(*model.User)
    return u
}

// username returns the authenticated username or "anon".
func username(c echo.Context) string {
    if u := CurrentUser(c); u != nil && u.Username != "" {
        return u.Username
    }
    return "anon"
}
