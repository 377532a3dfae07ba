package middleware

import (
	"antrian-klinik/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"golang.org/x/crypto/bcrypt"
)

// DisplayAuth guards the waiting-room screens. passHash is a bcrypt hash;
// an empty hash rejects every login.
func DisplayAuth(user, passHash string) fiber.Handler {
	auth := basicauth.New(basicauth.Config{
		Realm: "Display Antrian",
		Authorizer: func(u, p string) bool {
			if u != user || passHash == "" {
				return false
			}
			return bcrypt.CompareHashAndPassword([]byte(passHash), []byte(p)) == nil
		},
		Unauthorized: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"error":   "unauthorized",
			})
		},
	})
	actor := models.Actor{ID: "display:" + user, Role: models.RoleDisplay}

	return func(c *fiber.Ctx) error {
		// basicauth stops the chain on failure, so the actor never leaks.
		c.Locals(LocalActor, actor)
		return auth(c)
	}
}
