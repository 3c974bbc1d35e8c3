package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	config "github.com/drivelane/drivelane/configs"
)

type BrevoService struct {
	APIKey      string
	SenderEmail string
	SenderName  string
}

var EmailClient *BrevoService

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent"`
}

func InitEmailService() {
	apiKey := config.Config("BREVO_API_KEY")
	senderEmail := config.Config("EMAIL_SENDER")
	senderName := config.Config("EMAIL_SENDER_NAME")

	if apiKey == "" || senderEmail == "" || senderName == "" {
		log.Println("⚠️ Email service not configured. Missing API Key, Sender Email, or Sender Name.")
		EmailClient = nil
		return
	}

	EmailClient = &BrevoService{
		APIKey:      apiKey,
		SenderEmail: senderEmail,
		SenderName:  senderName,
	}
	log.Println("✅ Email service initialized successfully.")
}

func SendEmail(recipientName, recipientEmail, subject, htmlBody string) {
	if EmailClient == nil {
		log.Printf("Email service disabled, skipping email %q to %s", subject, recipientEmail)
		return
	}
	if strings.TrimSpace(recipientEmail) == "" {
		log.Printf("Skipping email %q: empty recipient", subject)
		return
	}

	payload := brevoPayload{
		Sender: map[string]string{
			"name":  EmailClient.SenderName,
			"email": EmailClient.SenderEmail,
		},
		To: []map[string]string{
			{"name": recipientName, "email": recipientEmail},
		},
		Subject:     subject,
		HTMLContent: htmlBody,
	}

	body, err := json.Marshal(&payload)
	if err != nil {
		log.Printf("🔥 Failed to marshal email payload: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, "https://api.brevo.com/v3/smtp/email", bytes.NewReader(body))
	if err != nil {
		log.Printf("🔥 Failed to build email request: %v", err)
		return
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", EmailClient.APIKey)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("🔥 Failed to send email to %s: %v", recipientEmail, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		log.Printf("🔥 Email API returned %d for %s: %s", resp.StatusCode, recipientEmail, string(respBody))
		return
	}
	log.Printf("✅ Email %q sent to %s", subject, recipientEmail)
}

func SendBookingConfirmed(renterName, renterEmail, carTitle, reference string) {
	body := fmt.Sprintf(
		"<h1>Booking Confirmed</h1><p>Your rental of <b>%s</b> is confirmed.</p><p>Booking reference: <b>%s</b></p>",
		carTitle, reference,
	)
	SendEmail(renterName, renterEmail, "Your Booking is Confirmed!", body)
}

func SendNewBookingToOwner(ownerName, ownerEmail, carTitle, reference string) {
	body := fmt.Sprintf(
		"<h1>New Booking Request</h1><p>Your car <b>%s</b> has a new booking request.</p><p>Reference: <b>%s</b></p>",
		carTitle, reference,
	)
	SendEmail(ownerName, ownerEmail, "You Have a New Booking!", body)
}

// SendAgreementReady delivers the download link once the rental agreement PDF
// has been generated and uploaded.
func SendAgreementReady(renterName, renterEmail, carTitle, reference, agreementURL string) {
	body := fmt.Sprintf(
		"<h1>Rental Agreement Ready</h1><p>The agreement for your rental of <b>%s</b> (reference %s) is ready.</p><p><a href=%q>Download your agreement</a></p>",
		carTitle, reference, agreementURL,
	)
	SendEmail(renterName, renterEmail, "Your Rental Agreement is Ready", body)
}
