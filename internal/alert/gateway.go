// Package alert fans a fall alert out to every emergency contact.
package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultMessage is the alert body sent to every recipient.
const DefaultMessage = "GuardianAI Alert: A potential fall has been detected."

// ErrInvalidNumber is returned for phone numbers that cannot be dialled.
var ErrInvalidNumber = errors.New("invalid phone number")

// Gateway sends a short text message to a phone number.
// Implementations must report failure through the returned error.
type Gateway interface {
	Send(ctx context.Context, phone, body string) error
}

// GatewayError is a failure to alert one recipient.
type GatewayError struct {
	ContactID string
	Phone     string
	Err       error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("alert contact %s (%s): %v", e.ContactID, e.Phone, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ValidatePhone reports whether phone looks dialable: an optional leading
// '+', then digits with optional spaces, dashes, dots or parentheses.
func ValidatePhone(phone string) error {
	p := strings.TrimSpace(phone)
	if p == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNumber)
	}
	digits := 0
	for i, r := range p {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
		}
	}
	if digits < 3 {
		return fmt.Errorf("%w: %q", ErrInvalidNumber, phone)
	}
	return nil
}
