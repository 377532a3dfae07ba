package middleware

import (
	"strings"

	"antrian-klinik/internal/config"
	"antrian-klinik/internal/models"

	"github.com/gofiber/fiber/v2"
)

const LocalActor = "actor"

// JWTAuth accepts "Authorization: Bearer <token>" or, for websocket
// upgrades where browsers cannot set headers, "?token=<token>".
func JWTAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Query("token")

		if authHeader := c.Get("Authorization"); authHeader != "" {
			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"error":   "Invalid authorization format",
				})
			}
			tokenString = tokenParts[1]
		}

		if tokenString == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Missing authorization header",
			})
		}

		claims, err := config.ValidateToken(tokenString)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "Invalid or expired token",
			})
		}

		role := models.Role(claims.Role)
		if !role.External() || claims.UserID == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"error":   "Role token tidak dikenal",
			})
		}

		c.Locals("user_id", claims.UserID)
		c.Locals("nama", claims.Nama)
		c.Locals("role", claims.Role)
		c.Locals(LocalActor, models.Actor{ID: claims.UserID, Role: role})

		return c.Next()
	}
}

func RoleAuth(allowedRoles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := ActorFrom(c).Role

		for _, allowedRole := range allowedRoles {
			if role == allowedRole {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   "Anda tidak memiliki akses ke resource ini",
		})
	}
}

// ActorFrom returns the zero Actor when no auth middleware ran; the engine
// rejects that as forbidden.
func ActorFrom(c *fiber.Ctx) models.Actor {
	actor, _ := c.Locals(LocalActor).(models.Actor)
	return actor
}
