package handlers

import (
	"math"
	"strconv"

	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/middleware"
	"github.com/drivelane/drivelane/models"
	"github.com/gofiber/fiber/v2"
)

type CreateCarRequest struct {
	Make        string  `json:"make" validate:"required,max=100"`
	Model       string  `json:"model" validate:"required,max=100"`
	Year        int     `json:"year" validate:"required,min=1980,max=2030"`
	PricePerDay float64 `json:"price_per_day" validate:"required,gt=0"`
	Currency    string  `json:"currency" validate:"omitempty,len=3"`
	Location    string  `json:"location" validate:"required,max=255"`
	Seats       int     `json:"seats" validate:"omitempty,min=1,max=12"`
	Description *string `json:"description"`
	PhotoURL    *string `json:"photo_url" validate:"omitempty,url"`
}

type UpdateCarRequest struct {
	PricePerDay *float64 `json:"price_per_day" validate:"omitempty,gt=0"`
	Location    *string  `json:"location" validate:"omitempty,max=255"`
	Description *string  `json:"description"`
	PhotoURL    *string  `json:"photo_url" validate:"omitempty,url"`
	Status      *string  `json:"status" validate:"omitempty,oneof=listed archived"`
}

func CreateCar(c *fiber.Ctx) error {
	ownerID := middleware.CurrentUserID(c)

	var req CreateCarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	seats := req.Seats
	if seats == 0 {
		seats = 5
	}

	car := models.Car{
		OwnerID:     ownerID,
		Make:        req.Make,
		Model:       req.Model,
		Year:        req.Year,
		PricePerDay: req.PricePerDay,
		Currency:    currency,
		Location:    req.Location,
		Seats:       seats,
		Description: req.Description,
		PhotoURL:    req.PhotoURL,
		Status:      "listed",
	}
	if err := database.DB.Create(&car).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create car"})
	}
	return c.Status(fiber.StatusCreated).JSON(car)
}

func ListCars(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := database.DB.Model(&models.Car{}).Where("status = ?", "listed")

	if location := c.Query("location"); location != "" {
		query = query.Where("location ILIKE ?", "%"+location+"%")
	}
	if carMake := c.Query("make"); carMake != "" {
		query = query.Where("make ILIKE ?", "%"+carMake+"%")
	}
	if maxPrice, err := strconv.ParseFloat(c.Query("max_price"), 64); err == nil && maxPrice > 0 {
		query = query.Where("price_per_day <= ?", maxPrice)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to count cars"})
	}

	var cars []models.Car
	if err := query.Preload("Owner").Order("created_at desc").Limit(pageSize).Offset(offset).Find(&cars).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch cars"})
	}

	return c.JSON(fiber.Map{
		"cars":        cars,
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": int(math.Ceil(float64(total) / float64(pageSize))),
	})
}

func GetCar(c *fiber.Ctx) error {
	carID := c.Params("carId")

	var car models.Car
	if err := database.DB.Preload("Owner").First(&car, "id = ?", carID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Car not found"})
	}

	var reviews []models.Review
	database.DB.Preload("Renter").Where("car_id = ?", car.ID).Order("created_at desc").Limit(20).Find(&reviews)

	return c.JSON(fiber.Map{"car": car, "reviews": reviews})
}

func GetMyCars(c *fiber.Ctx) error {
	ownerID := middleware.CurrentUserID(c)

	var cars []models.Car
	if err := database.DB.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&cars).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch cars"})
	}
	return c.JSON(cars)
}

func UpdateCar(c *fiber.Ctx) error {
	ownerID := middleware.CurrentUserID(c)
	carID := c.Params("carId")

	var car models.Car
	if err := database.DB.First(&car, "id = ?", carID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Car not found"})
	}
	if car.OwnerID != ownerID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "You do not own this car"})
	}

	var req UpdateCarRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if req.PricePerDay != nil {
		car.PricePerDay = *req.PricePerDay
	}
	if req.Location != nil {
		car.Location = *req.Location
	}
	if req.Description != nil {
		car.Description = req.Description
	}
	if req.PhotoURL != nil {
		car.PhotoURL = req.PhotoURL
	}
	if req.Status != nil {
		car.Status = *req.Status
	}

	if err := database.DB.Save(&car).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update car"})
	}
	return c.JSON(car)
}
