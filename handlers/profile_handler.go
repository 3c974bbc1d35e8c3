package handlers

import (
	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/middleware"
	"github.com/drivelane/drivelane/models"
	"github.com/gofiber/fiber/v2"
)

type UpdateProfileRequest struct {
	FullName  *string `json:"full_name" validate:"omitempty,min=3"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	City      *string `json:"city" validate:"omitempty,max=100"`
	About     *string `json:"about"`
}

func GetMyProfile(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}
	return c.JSON(user)
}

func UpdateMyProfile(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var req UpdateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var user models.User
	if err := database.DB.First(&user, "id = ?", userID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.AvatarURL != nil {
		user.AvatarURL = req.AvatarURL
	}
	if req.Phone != nil {
		user.Phone = req.Phone
	}
	if req.City != nil {
		user.City = req.City
	}
	if req.About != nil {
		user.About = req.About
	}

	if err := database.DB.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}
	return c.JSON(user)
}
