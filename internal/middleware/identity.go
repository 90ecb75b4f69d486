package middleware

// identity.go exposes the caller identity stored by JWTAuth/OptionalJWT.
// Anonymous requests report an empty user id; the rate limiter keys them
// as "guest".

import "github.com/labstack/echo/v4"

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   string
	Email  string
}

// CurrentUser returns the identity set by the JWT middleware.  ok is false
// for anonymous requests.
func CurrentUser(c echo.Context) (Identity, bool) {
	uid, _ := c.Get(CtxUserID).(string)
	if uid == "" {
		return Identity{}, false
	}
	role, _ := c.Get(CtxRole).(string)
	email, _ := c.Get(CtxEmail).(string)
	return Identity{UserID: uid, Role: role, Email: email}, true
}

// userID returns the caller id or "guest".
func userID(c echo.Context) string {
	if id, ok := CurrentUser(c); ok {
		return id.UserID
	}
	return "guest"
}
