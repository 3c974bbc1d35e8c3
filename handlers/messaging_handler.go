package handlers

import (
	"log"
	"strconv"
	"time"

	config "github.com/drivelane/drivelane/configs"
	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/middleware"
	"github.com/drivelane/drivelane/models"
	"github.com/drivelane/drivelane/websocket"
	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type StartConversationRequest struct {
	RecipientID int64  `json:"recipient_id" validate:"required,gt=0"`
	BookingID   *int64 `json:"booking_id" validate:"omitempty,gt=0"`
}

type SendMessageRequest struct {
	ConversationID int64  `json:"conversation_id" validate:"required,gt=0"`
	Content        string `json:"content" validate:"required,max=4000"`
}

type conversationSummary struct {
	ID          int64           `json:"id"`
	BookingID   *int64          `json:"booking_id"`
	Other       models.User     `json:"other_participant"`
	LastMessage *models.Message `json:"last_message"`
	UnreadCount int64           `json:"unread_count"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func GetUserConversations(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var conversations []models.Conversation
	if err := database.DB.
		Preload("Renter").Preload("Owner").
		Where("renter_id = ? OR owner_id = ?", userID, userID).
		Order("updated_at desc").
		Find(&conversations).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch conversations"})
	}

	summaries := make([]conversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		var last models.Message
		lastPtr := &last
		if err := database.DB.Where("conversation_id = ?", conv.ID).Order("created_at desc").First(&last).Error; err != nil {
			lastPtr = nil
		}

		var unread int64
		database.DB.Model(&models.Message{}).
			Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conv.ID, userID, false).
			Count(&unread)

		summaries = append(summaries, conversationSummary{
			ID:          conv.ID,
			BookingID:   conv.BookingID,
			Other:       conv.OtherParticipant(userID),
			LastMessage: lastPtr,
			UnreadCount: unread,
			CreatedAt:   conv.CreatedAt,
			UpdatedAt:   conv.UpdatedAt,
		})
	}
	return c.JSON(summaries)
}

func CreateOrGetConversation(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var req StartConversationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if req.RecipientID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot start a conversation with yourself"})
	}

	var recipient models.User
	if err := database.DB.First(&recipient, "id = ?", req.RecipientID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Recipient not found"})
	}

	query := database.DB.Where(
		"(renter_id = ? AND owner_id = ?) OR (renter_id = ? AND owner_id = ?)",
		userID, req.RecipientID, req.RecipientID, userID,
	)
	if req.BookingID != nil {
		query = query.Where("booking_id = ?", *req.BookingID)
	} else {
		query = query.Where("booking_id IS NULL")
	}

	var conversation models.Conversation
	err := query.First(&conversation).Error
	if err == nil {
		return c.JSON(conversation)
	}
	if err != gorm.ErrRecordNotFound {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to look up conversation"})
	}

	conversation = models.Conversation{
		RenterID:  userID,
		OwnerID:   req.RecipientID,
		BookingID: req.BookingID,
	}
	if req.BookingID != nil {
		var booking models.Booking
		if err := database.DB.First(&booking, "id = ?", *req.BookingID).Error; err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Booking not found"})
		}
		if (booking.RenterID != userID || booking.OwnerID != req.RecipientID) &&
			(booking.RenterID != req.RecipientID || booking.OwnerID != userID) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Booking does not involve both participants"})
		}
		conversation.RenterID = booking.RenterID
		conversation.OwnerID = booking.OwnerID
	}

	if err := database.DB.Create(&conversation).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create conversation"})
	}
	return c.Status(fiber.StatusCreated).JSON(conversation)
}

func GetConversationMessages(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	conversationID := c.Params("conversationId")

	var conversation models.Conversation
	if err := database.DB.First(&conversation, "id = ?", conversationID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}
	if conversation.RenterID != userID && conversation.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "50"))
	offset := (page - 1) * pageSize

	var messages []models.Message
	if err := database.DB.
		Where("conversation_id = ?", conversation.ID).
		Order("created_at asc").
		Limit(pageSize).
		Offset(offset).
		Find(&messages).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch messages"})
	}
	return c.JSON(messages)
}

func SendMessage(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)

	var req SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot parse JSON"})
	}
	if err := validate.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	message, err := persistAndPublishMessage(userID, req.ConversationID, req.Content)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusCreated).JSON(message)
}

func MarkConversationRead(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	conversationID := c.Params("conversationId")

	var conversation models.Conversation
	if err := database.DB.First(&conversation, "id = ?", conversationID).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Conversation not found"})
	}
	if conversation.RenterID != userID && conversation.OwnerID != userID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not a participant of this conversation"})
	}

	result := database.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND receiver_id = ? AND is_read = ?", conversation.ID, userID, false).
		Update("is_read", true)
	if result.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to mark messages read"})
	}

	other := conversation.OwnerID
	if other == userID {
		other = conversation.RenterID
	}
	payload := map[string]any{
		"conversation_id": conversation.ID,
		"sender_id":       other,
		"receiver_id":     userID,
		"read_count":      result.RowsAffected,
		"updated_at":      time.Now().UTC().Format(time.RFC3339),
	}
	websocket.Publish(userID, websocket.EventMessagesRead, payload)
	websocket.Publish(other, websocket.EventMessagesRead, payload)

	return c.JSON(fiber.Map{"marked_read": result.RowsAffected})
}

// persistAndPublishMessage stores a message and pushes a message.sent event to
// both participants' private channels.
func persistAndPublishMessage(senderID, conversationID int64, content string) (*models.Message, error) {
	var conversation models.Conversation
	if err := database.DB.First(&conversation, "id = ?", conversationID).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusNotFound, "conversation not found")
	}
	if conversation.RenterID != senderID && conversation.OwnerID != senderID {
		return nil, fiber.NewError(fiber.StatusForbidden, "not a participant of this conversation")
	}

	receiverID := conversation.OwnerID
	if receiverID == senderID {
		receiverID = conversation.RenterID
	}

	message := models.Message{
		ConversationID: conversation.ID,
		SenderID:       senderID,
		ReceiverID:     receiverID,
		Content:        content,
		BookingID:      conversation.BookingID,
	}
	if err := database.DB.Create(&message).Error; err != nil {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "failed to save message")
	}
	database.DB.Model(&conversation).Update("updated_at", time.Now())

	payload := map[string]any{
		"id":              message.ID,
		"conversation_id": message.ConversationID,
		"sender_id":       message.SenderID,
		"receiver_id":     message.ReceiverID,
		"content":         message.Content,
		"read":            message.IsRead,
		"created_at":      message.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":      message.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if message.BookingID != nil {
		payload["booking_id"] = *message.BookingID
	}
	websocket.Publish(message.SenderID, websocket.EventMessageSent, payload)
	websocket.Publish(message.ReceiverID, websocket.EventMessageSent, payload)

	return &message, nil
}

func ServeWs(c *websocketcontrib.Conn) {
	type AuthMessage struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	var authMsg AuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		log.Printf("WebSocket auth failed: invalid or missing auth message, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := parseToken(authMsg.Token)
	if err != nil {
		log.Printf("WebSocket auth failed: invalid token, error: %v", err)
		_ = c.WriteJSON(fiber.Map{"error": "Invalid token"})
		c.Close()
		return
	}

	rawID, ok := claims["user_id"].(float64)
	if !ok {
		log.Printf("WebSocket auth failed: invalid user_id claim: %v", claims["user_id"])
		_ = c.WriteJSON(fiber.Map{"error": "Invalid user ID"})
		c.Close()
		return
	}
	userID := int64(rawID)

	log.Printf("WebSocket client authenticated and registered: %d", userID)
	client := &websocket.Client{UserID: userID, Conn: c}
	websocket.Register <- client
	defer func() {
		log.Printf("Unregistering client: %d", userID)
		websocket.Unregister <- client
		c.Close()
	}()

	for {
		var msg SendMessageRequest
		if err := c.ReadJSON(&msg); err != nil {
			if websocketcontrib.IsCloseError(err, websocketcontrib.CloseGoingAway, websocketcontrib.CloseAbnormalClosure) {
				log.Printf("WebSocket closed for client %d: %v", userID, err)
			} else {
				log.Printf("WebSocket read error for client %d: %v", userID, err)
			}
			break
		}

		if msg.ConversationID <= 0 || msg.Content == "" {
			_ = c.WriteJSON(fiber.Map{"error": "conversation_id and content are required"})
			continue
		}
		if _, err := persistAndPublishMessage(userID, msg.ConversationID, msg.Content); err != nil {
			log.Printf("Failed to deliver message from client %d: %v", userID, err)
			_ = c.WriteJSON(fiber.Map{"error": err.Error()})
		}
	}
}

func parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fiber.NewError(fiber.StatusUnauthorized, "unexpected signing method")
		}
		return []byte(config.Config("JWT_SECRET")), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fiber.NewError(fiber.StatusUnauthorized, "invalid token")
}
