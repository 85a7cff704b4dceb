package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
)

// Permission levels carried in the token.
const (
	Staff    = 1
	Reviewer = 2
	Admin    = 3
)

const (
	actorKey      = "actor"
	permissionKey = "permission"
)

// Claims identifies the acting employee. Subject is the employee id.
type Claims struct {
	Permission int `json:"permission"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

// Sign issues a token for actor. Used by tooling and tests; login lives elsewhere.
func (a *Auth) Sign(actor string, permission int, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Permission: permission,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func tokenFrom(c *fiber.Ctx) string {
	if cookie := c.Cookies("jwt"); cookie != "" {
		return cookie
	}
	header := c.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (a *Auth) parse(raw string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Verify requires a valid token whose permission is at least requiredPermission.
func (a *Auth) Verify(requiredPermission int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := tokenFrom(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Not Logged In.",
			})
		}
		claims, err := a.parse(raw)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error":   "unauthorized",
				"message": "Invalid or expired token",
			})
		}

		c.Locals(actorKey, claims.Subject)
		c.Locals(permissionKey, claims.Permission)

		if claims.Permission < requiredPermission || claims.Permission < Staff {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":   "forbidden",
				"message": "Insufficient permissions to access this resource",
			})
		}
		return c.Next()
	}
}

// Actor returns the employee id resolved by Verify.
func Actor(c *fiber.Ctx) string {
	actor, _ := c.Locals(actorKey).(string)
	return actor
}

func Permission(c *fiber.Ctx) int {
	level, _ := c.Locals(permissionKey).(int)
	return level
}
