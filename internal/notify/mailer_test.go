package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"cvforge/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func testMailer(d dialer) *Mailer {
	return NewMailerWithDialer(d, "receipts@cvforge.example",
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSendOrderReceipt_AddressesBuyer(t *testing.T) {
	d := &captureDialer{}
	m := testMailer(d)

	err := m.SendOrderReceipt(context.Background(), "buyer@example.com", &types.Order{
		ID:             "ord-1",
		Package:        types.PackageStandard,
		AmountCents:    2499,
		Currency:       "usd",
		EditsRemaining: 10,
	})
	require.NoError(t, err)

	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"buyer@example.com"}, d.sent[0].GetHeader("To"))
	assert.Contains(t, d.sent[0].GetHeader("Subject")[0], "standard")
}

func TestSendOrderReceipt_UnlimitedEdits(t *testing.T) {
	d := &captureDialer{}
	m := testMailer(d)

	err := m.SendOrderReceipt(context.Background(), "buyer@example.com", &types.Order{
		ID:             "ord-1",
		Package:        types.PackagePremium,
		AmountCents:    4999,
		Currency:       "usd",
		EditsRemaining: int(types.UnlimitedEditsSentinel),
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)
}

func TestSend_SMTPFailureMapsToUpstreamEmail(t *testing.T) {
	d := &captureDialer{err: errors.New("connection refused")}
	m := testMailer(d)

	err := m.SendUpgradeConfirmation(context.Background(), "jo@example.com", types.PlanChange{
		UserID: "user-1", PreviousPlan: types.PlanBasic, NewPlan: types.PlanPro,
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamEmail, appErr.Code)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "24.99 USD", formatAmount(2499, "usd"))
	assert.Equal(t, "0.00 EUR", formatAmount(0, "eur"))
}
