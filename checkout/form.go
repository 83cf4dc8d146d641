package checkout

import (
	"fmt"
	"strings"

	"github.com/desietsy/desietsy-backend-go/models"
)

type PaymentMode string

const (
	ModeCOD     PaymentMode = "cod"
	ModeGateway PaymentMode = "gateway"
)

// ParsePaymentMode accepts the mode names shoppers are likely to type.
func ParsePaymentMode(s string) (PaymentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cod", "cash", "cash on delivery":
		return ModeCOD, nil
	case "gateway", "online", "upi", "razorpay", "card":
		return ModeGateway, nil
	default:
		return "", fmt.Errorf("%w: select a payment mode", models.ErrValidation)
	}
}

// Label is the payment method shown in confirmation mails.
func (m PaymentMode) Label() string {
	if m == ModeGateway {
		return "Razorpay"
	}
	return "Cash on Delivery"
}

type DeliveryDetails struct {
	Name    string `json:"name"`
	Mobile  string `json:"mobile"`
	Pincode string `json:"pincode"`
	State   string `json:"state"`
	City    string `json:"city"`
	Address string `json:"address"`
}

func (d DeliveryDetails) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"name", d.Name},
		{"mobile", d.Mobile},
		{"address", d.Address},
		{"pincode", d.Pincode},
		{"state", d.State},
		{"city", d.City},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: please fill in all delivery details (missing %s)", models.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

// Format renders the details as the single address line stored on the order.
func (d DeliveryDetails) Format() string {
	return fmt.Sprintf("%s, %s, %s, %s - %s (mobile %s)",
		strings.TrimSpace(d.Name),
		strings.TrimSpace(d.Address),
		strings.TrimSpace(d.City),
		strings.TrimSpace(d.State),
		strings.TrimSpace(d.Pincode),
		strings.TrimSpace(d.Mobile),
	)
}

type Buyer struct {
	ID    string
	Name  string
	Email string
}

type Request struct {
	Buyer    Buyer
	Delivery DeliveryDetails
	Mode     PaymentMode
}

func (r Request) validate() error {
	if err := r.Delivery.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Buyer.ID) == "" {
		return fmt.Errorf("%w: you must be logged in to place an order", models.ErrValidation)
	}
	if r.Mode != ModeCOD && r.Mode != ModeGateway {
		return fmt.Errorf("%w: select a payment mode", models.ErrValidation)
	}
	return nil
}
