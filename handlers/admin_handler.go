package handlers

import (
	"math"
	"strconv"

	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/models"
	"github.com/gofiber/fiber/v2"
)

func AdminListUsers(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	var total int64
	if err := database.DB.Model(&models.User{}).Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count users"})
	}

	var users []models.User
	if err := database.DB.Order("created_at desc").Limit(pageSize).Offset(offset).Find(&users).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch users"})
	}

	return c.JSON(fiber.Map{
		"users":       users,
		"page":        page,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

func AdminSetUserActive(c *fiber.Ctx) error {
	userID := c.Params("userId")

	type Request struct {
		IsActive *bool `json:"is_active" validate:"required"`
	}
	var req Request
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
	if user.Role == "admin" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Cannot deactivate an admin"})
	}

	user.IsActive = *req.IsActive
	if err := database.DB.Save(&user).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update user"})
	}
	return c.JSON(user)
}

func AdminListBookings(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	offset := (page - 1) * pageSize

	query := database.DB.Model(&models.Booking{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count bookings"})
	}

	var bookings []models.Booking
	if err := query.Preload("Car").Preload("Renter").Preload("Owner").
		Order("created_at desc").Limit(pageSize).Offset(offset).Find(&bookings).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch bookings"})
	}

	return c.JSON(fiber.Map{
		"bookings":    bookings,
		"page":        page,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(pageSize))),
	})
}
