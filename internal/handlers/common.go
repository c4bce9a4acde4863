package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// currentUser reads the identity AuthRequired stored on the request context.
func currentUser(c *fiber.Ctx) (int64, string, error) {
	userID, ok := c.Locals("user_id").(int64)
	if !ok || userID <= 0 {
		return 0, "", fmt.Errorf("missing user id")
	}
	role, ok := c.Locals("role").(string)
	if !ok || role == "" {
		return 0, "", fmt.Errorf("missing role")
	}
	return userID, role, nil
}
