package services

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"time"

	config "github.com/drivelane/drivelane/configs"
	"github.com/drivelane/drivelane/database"
	"github.com/drivelane/drivelane/models"
	"github.com/drivelane/drivelane/notifications"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

// GenerateRentalAgreement renders the rental agreement for a confirmed booking
// to PDF, uploads it and stores the URL on the booking. Intended to run in a
// goroutine; failures are logged, the booking stays usable without a PDF.
func GenerateRentalAgreement(booking models.Booking) {
	if booking.AgreementURL != nil {
		return
	}

	htmlData, err := generateAgreementHTML(booking)
	if err != nil {
		log.Printf("🔥 Failed to generate agreement HTML for booking %s: %v", booking.Reference, err)
		return
	}

	pdfBytes, err := generatePDFFromHTML(htmlData)
	if err != nil {
		log.Printf("🔥 Failed to generate agreement PDF for booking %s: %v", booking.Reference, err)
		return
	}

	uploadURL, err := uploadToCloudinary(pdfBytes, booking.Reference)
	if err != nil {
		log.Printf("🔥 Failed to upload agreement for booking %s: %v", booking.Reference, err)
		return
	}

	if err := database.DB.Model(&models.Booking{}).
		Where("id = ?", booking.ID).
		Update("agreement_url", uploadURL).Error; err != nil {
		log.Printf("🔥 Failed to store agreement URL for booking %s: %v", booking.Reference, err)
		return
	}

	carTitle := fmt.Sprintf("%s %s", booking.Car.Make, booking.Car.Model)
	notifications.SendAgreementReady(booking.Renter.FullName, booking.Renter.Email, carTitle, booking.Reference, uploadURL)

	log.Printf("✅ Generated rental agreement for booking %s", booking.Reference)
}

func generateAgreementHTML(booking models.Booking) (string, error) {
	tmpl, err := template.ParseFiles("templates/agreement.html")
	if err != nil {
		return "", err
	}

	data := struct {
		Reference  string
		RenterName string
		OwnerName  string
		CarTitle   string
		StartDate  string
		EndDate    string
		TotalPrice string
		IssuedAt   string
	}{
		Reference:  booking.Reference,
		RenterName: booking.Renter.FullName,
		OwnerName:  booking.Owner.FullName,
		CarTitle:   fmt.Sprintf("%s %s (%d)", booking.Car.Make, booking.Car.Model, booking.Car.Year),
		StartDate:  booking.StartDate.Format("January 2, 2006"),
		EndDate:    booking.EndDate.Format("January 2, 2006"),
		TotalPrice: fmt.Sprintf("%.2f %s", booking.TotalPrice, booking.Currency),
		IssuedAt:   time.Now().Format("January 2, 2006"),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func generatePDFFromHTML(html string) ([]byte, error) {
	ctx, cancel := chromedp.NewContext(context.Background())
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	var pdfBytes []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frameTree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frameTree.Frame.ID, html).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdfBytes, _, err = page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return pdfBytes, nil
}

func uploadToCloudinary(pdfBytes []byte, reference string) (string, error) {
	cld, err := cloudinary.NewFromURL(config.Config("CLOUDINARY_URL"))
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	publicID := fmt.Sprintf("agreement_%s_%s", reference, uuid.New().String())
	resp, err := cld.Upload.Upload(ctx, bytes.NewReader(pdfBytes), uploader.UploadParams{
		PublicID:     publicID,
		Folder:       "drivelane_agreements",
		ResourceType: "raw",
	})
	if err != nil {
		return "", err
	}
	return resp.SecureURL, nil
}
