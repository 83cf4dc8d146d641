package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/desietsy/desietsy-backend-go/checkout"
	"github.com/shopspring/decimal"
)

// terminalWidget stands in for the gateway's browser widget. The buyer pays
// out of band and pastes the payment id and signature the gateway returned.
type terminalWidget struct {
	in      *bufio.Reader
	out     io.Writer
	abandon context.CancelFunc
}

func (w *terminalWidget) Open(_ context.Context, req checkout.WidgetRequest, onComplete func(checkout.PaymentConfirmation)) error {
	amount := decimal.New(req.Intent.Amount, -2)
	fmt.Fprintf(w.out, "Pay %s %s for gateway order %s\n", amount.StringFixed(2), req.Intent.Currency, req.Intent.GatewayOrderID)
	fmt.Fprintf(w.out, "Billing: %s <%s> %s\n", req.Prefill.Name, req.Prefill.Email, req.Prefill.Contact)

	go func() {
		paymentID := w.prompt("payment id (blank to cancel): ")
		if paymentID == "" {
			w.abandon()
			return
		}
		signature := w.prompt("signature: ")
		onComplete(checkout.PaymentConfirmation{
			GatewayOrderID: req.Intent.GatewayOrderID,
			PaymentID:      paymentID,
			Signature:      signature,
		})
	}()
	return nil
}

func (w *terminalWidget) prompt(label string) string {
	fmt.Fprint(w.out, label)
	line, _ := w.in.ReadString('\n')
	return strings.TrimSpace(line)
}
