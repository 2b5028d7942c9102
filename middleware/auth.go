// middleware/auth.go
package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	localUserID   = "userId"
	localUsername = "username"
)

// Claims is the bearer token payload. Tokens are issued by the account
// service; this package only verifies them.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// subject returns user_id, falling back to the registered sub claim.
func (c *Claims) subject() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// ParseToken verifies an HS256 token and returns its claims. Tokens without
// an expiry are rejected.
func ParseToken(tokenString, secret string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.subject() == "" {
		return nil, errors.New("token has no user id")
	}
	return claims, nil
}

// bearerToken extracts the token from "Authorization: Bearer <token>". The
// websocket upgrade may carry it as ?token= instead.
func bearerToken(c *fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		if token := c.Query("token"); token != "" {
			return token, nil
		}
		return "", errors.New("Missing authorization header")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("Invalid authorization header format")
	}
	return parts[1], nil
}

// Auth verifies the bearer token and stores the caller in locals.
func Auth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, err := bearerToken(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   err.Error(),
			})
		}

		claims, err := ParseToken(tokenString, secret)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired token",
			})
		}

		c.Locals(localUserID, claims.subject())
		c.Locals(localUsername, claims.Username)
		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) (string, error) {
	if id, ok := c.Locals(localUserID).(string); ok && id != "" {
		return id, nil
	}
	return "", fiber.NewError(fiber.StatusUnauthorized, "User not authenticated")
}

func GetUsername(c *fiber.Ctx) string {
	name, _ := c.Locals(localUsername).(string)
	return name
}
