// Package vision turns an image into a short Vietnamese caption for
// playback.
package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"

	"kinetype/internal/domain"
)

// MaxImageBytes is the default upload limit.
const MaxImageBytes = 5 * 1024 * 1024

// Provider describes images.
type Provider interface {
	Describe(ctx context.Context, image []byte, mime string) (string, error)
}

var (
	ErrNotImage      = fmt.Errorf("vision: not an image: %w", domain.ErrInvalidInput)
	ErrImageTooLarge = fmt.Errorf("vision: image too large: %w", domain.ErrInvalidInput)
	ErrNoImage       = fmt.Errorf("vision: no image selected: %w", domain.ErrInvalidInput)
	ErrNetwork       = fmt.Errorf("vision: network error: %w", domain.ErrExternalService)
	ErrEmptyCaption  = fmt.Errorf("vision: empty caption: %w", domain.ErrExternalService)
)

// ServiceError is a non-2xx reply from the vision service.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "Unknown error"
	}
	return fmt.Sprintf("OpenAI API Error: %d - %s", e.Status, msg)
}

func (e *ServiceError) Unwrap() error { return domain.ErrExternalService }

// SizeError reports an image over the configured limit. It matches
// ErrImageTooLarge.
type SizeError struct {
	Size  int64
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%v (%d bytes, limit %d)", ErrImageTooLarge, e.Size, e.Limit)
}

func (e *SizeError) Unwrap() error { return ErrImageTooLarge }

// humanSize prints n as whole MB or KB when it divides evenly, else bytes.
func humanSize(n int64) string {
	switch {
	case n >= 1<<20 && n%(1<<20) == 0:
		return fmt.Sprintf("%dMB", n>>20)
	case n >= 1<<10 && n%(1<<10) == 0:
		return fmt.Sprintf("%dKB", n>>10)
	}
	return fmt.Sprintf("%d bytes", n)
}

// UserMessage maps a Describe or image validation error to the single line
// shown to the user.
func UserMessage(err error) string {
	var (
		se *ServiceError
		ze *SizeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &se):
		switch se.Status {
		case http.StatusUnauthorized:
			return "Invalid API Key. Please check your key."
		case http.StatusForbidden:
			return "API Key does not have access. Please check your key."
		case http.StatusTooManyRequests:
			return "Too many requests. Please try again later."
		}
		return se.Error()
	case errors.Is(err, ErrNetwork):
		return "Network connection error. Please check your internet."
	case errors.Is(err, ErrNotImage):
		return "Please select an image file!"
	case errors.As(err, &ze):
		return fmt.Sprintf("File too large! Please select an image smaller than %s.", humanSize(ze.Limit))
	case errors.Is(err, ErrImageTooLarge):
		return fmt.Sprintf("File too large! Please select an image smaller than %s.", humanSize(MaxImageBytes))
	case errors.Is(err, ErrNoImage):
		return "Please select an image first!"
	}
	return err.Error()
}

// ValidateImage sniffs data and enforces the size limit. It returns the
// detected MIME type. A non-positive limit means MaxImageBytes.
func ValidateImage(data []byte, limit int64) (string, error) {
	if limit <= 0 {
		limit = MaxImageBytes
	}
	if len(data) == 0 {
		return "", ErrNoImage
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("%w (%s)", ErrNotImage, mime)
	}
	if int64(len(data)) > limit {
		return "", &SizeError{Size: int64(len(data)), Limit: limit}
	}
	return mime, nil
}

// LoadImage reads and validates an image file. The size is checked before
// the file is read.
func LoadImage(path string, limit int64) ([]byte, string, error) {
	if limit <= 0 {
		limit = MaxImageBytes
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, "", fmt.Errorf("stat image: %w", err)
	}
	if info.Size() > limit {
		return nil, "", &SizeError{Size: info.Size(), Limit: limit}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read image: %w", err)
	}
	mime, err := ValidateImage(data, limit)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}

// NormalizeCaption trims a caption, collapses inner whitespace to single
// spaces and composes it to NFC so each Vietnamese letter is one rune.
func NormalizeCaption(s string) string {
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}
