package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxFileSize is the largest accepted photo (25MB)
	MaxFileSize int64 = 25 << 20
	// MaxNameLength is where customer names are cut
	MaxNameLength = 100
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	// AllowedContentTypes are the accepted photo MIME types
	AllowedContentTypes = []string{"image/jpeg", "image/png", "image/jpg", "image/webp"}
)

func init() {
	Validate = validator.New()

	if err := Validate.RegisterValidation("whatsapp_id", validateWhatsApp); err != nil {
		panic(fmt.Sprintf("failed to register whatsapp_id validator: %v", err))
	}
	if err := Validate.RegisterValidation("photo_type", validatePhotoType); err != nil {
		panic(fmt.Sprintf("failed to register photo_type validator: %v", err))
	}
}

// UploadForm is a pas foto upload after sanitizing.
// Presence of the raw fields is checked by RequireFields before sanitizing.
type UploadForm struct {
	CustomerName     string `validate:"min=2,max=100"`
	CustomerWhatsApp string `validate:"whatsapp_id"`
	Background       string `validate:"required,oneof=merah biru putih asli"`
	Size             string `validate:"required,oneof=2x3 3x4 4x6 visa"`
	Quantity         int    `validate:"oneof=4 8"`
	FileName         string `validate:"required"`
	FileSize         int64  `validate:"gt=0,lte=26214400"`
	ContentType      string `validate:"photo_type"`
}

// FieldError is a validation failure with the message shown to the customer
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ErrMissingFields is returned when any form field is absent
var ErrMissingFields = &FieldError{Field: "form", Message: "Semua field wajib diisi."}

// RequireFields returns ErrMissingFields when any raw value is empty
func RequireFields(values ...string) error {
	for _, v := range values {
		if v == "" {
			return ErrMissingFields
		}
	}
	return nil
}

// SanitizeName trims, strips control characters and cuts to MaxNameLength runes
func SanitizeName(name string) string {
	name = strings.TrimSpace(SanitizeText(name))
	if utf8.RuneCountInString(name) > MaxNameLength {
		name = strings.TrimSpace(string([]rune(name)[:MaxNameLength]))
	}
	return name
}

// SanitizeWhatsApp keeps digits only, so "+62 812-3456-7890" becomes "6281234567890"
func SanitizeWhatsApp(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeText removes control characters except newline and tab
func SanitizeText(text string) string {
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}
	return sanitized.String()
}

// ValidateUpload checks form and maps the first failure to a customer facing FieldError
func ValidateUpload(form *UploadForm) error {
	err := Validate.Struct(form)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("failed to validate upload: %w", err)
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return ErrMissingFields
	}
	return &FieldError{Field: fe.Field(), Message: messageFor(fe)}
}

func messageFor(fe validator.FieldError) string {
	switch fe.Field() {
	case "CustomerName":
		return "Nama minimal 2 karakter."
	case "CustomerWhatsApp":
		return "Nomor WhatsApp tidak valid. Gunakan 10-16 digit yang diawali 0 atau 62."
	case "Background":
		return "Background tidak valid."
	case "Size":
		return "Ukuran tidak valid."
	case "Quantity":
		return "Jumlah tidak valid."
	case "FileSize":
		if fe.Tag() == "gt" {
			return "File kosong."
		}
		return fmt.Sprintf("File terlalu besar. Maksimal %dMB.", MaxFileSize>>20)
	case "ContentType":
		return "Format file tidak valid. Gunakan JPG, PNG, atau WebP."
	default:
		return "Input tidak valid."
	}
}

// validateWhatsApp accepts 10-16 digits starting with 0 or 62
func validateWhatsApp(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if len(value) < 10 || len(value) > 16 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.HasPrefix(value, "0") || strings.HasPrefix(value, "62")
}

func validatePhotoType(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	for _, allowed := range AllowedContentTypes {
		if value == allowed {
			return true
		}
	}
	return false
}
