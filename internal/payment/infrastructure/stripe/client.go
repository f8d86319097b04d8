package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/samilyak/stayflow/internal/payment/application"
)

// Client wraps Stripe Checkout. Sessions carry the booking id as the client
// reference so webhooks can be matched back even without our session row.
type Client struct {
	log        *slog.Logger
	api        *client.API
	successURL string
	cancelURL  string
}

func NewClient(log *slog.Logger, apiKey, successURL, cancelURL string) *Client {
	return &Client{
		log:        log,
		api:        client.New(apiKey, nil),
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

func (c *Client) CreateSession(ctx context.Context, bookingID, amountCents int64) (application.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: ctx},
		Mode:   stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(amountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Stay booking #%d", bookingID)),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(c.successURL),
		CancelURL:         stripe.String(c.cancelURL),
		ClientReferenceID: stripe.String(strconv.FormatInt(bookingID, 10)),
	}
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session{ID: sess.ID, URL: sess.URL}, nil
}

// Refund reverses the captured payment. An already-refunded charge counts as
// success so a retried compensation does not wedge the saga.
func (c *Client) Refund(ctx context.Context, chargeRef string) error {
	_, err := c.api.Refunds.New(&stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(chargeRef),
	})
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeChargeAlreadyRefunded {
		c.log.Warn("charge already refunded", "charge_ref", chargeRef)
		return nil
	}
	return err
}
