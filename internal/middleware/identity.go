package middleware

// identity.go reads the caller stored in the echo context by JWTAuth.

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user's ID, or "" for anonymous requests.
func UserID(c echo.Context) string {
	if v, ok := c.Get(ContextUserID).(string); ok {
		return v
	}
	return ""
}

// Role returns the authenticated user's role, or "".
func Role(c echo.Context) string {
	if v, ok := c.Get(ContextRole).(string); ok {
		return v
	}
	return ""
}

// rateIdentity names the caller for rate-limit keys.
func rateIdentity(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
