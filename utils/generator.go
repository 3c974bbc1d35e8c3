package utils

import (
	"math/rand"
	"time"

	"github.com/drivelane/drivelane/models"
	"gorm.io/gorm"
)

const referenceCodeLength = 8
const letterBytes = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var seededRand = rand.New(rand.NewSource(time.Now().UnixNano()))

// ReferenceCode returns a random "DL-" prefixed booking reference.
func ReferenceCode() string {
	b := make([]byte, referenceCodeLength)
	for i := range b {
		b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
	}
	return "DL-" + string(b)
}

func GenerateUniqueBookingReference(tx *gorm.DB) (string, error) {
	for {
		code := ReferenceCode()

		var booking models.Booking
		err := tx.Where("reference = ?", code).First(&booking).Error
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return code, nil
			}
			return "", err
		}
	}
}
