package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	sent []string
	fail map[string]bool
}

func (m *fakeMailer) Send(_ context.Context, _, to, subject, _ string) error {
	if m.fail[to] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, to+"|"+subject)
	return nil
}

func TestAlertMailsEveryRecipient(t *testing.T) {
	mailer := &fakeMailer{}
	svc := New(mailer, "payroll@example.com", []string{"ops@example.com", " ", "cfo@example.com"})

	require.NoError(t, svc.Alert(context.Background(), "org-1", "period needs repair", "details"))

	assert.Equal(t, []string{
		"ops@example.com|[nomina] period needs repair",
		"cfo@example.com|[nomina] period needs repair",
	}, mailer.sent)
	recent := svc.Recent("org-1", 0)
	require.Len(t, recent, 1)
	assert.Equal(t, 2, recent[0].Delivered)
}

func TestAlertKeepsAlertWhenDeliveryFails(t *testing.T) {
	mailer := &fakeMailer{fail: map[string]bool{"ops@example.com": true}}
	svc := New(mailer, "", []string{"ops@example.com", "cfo@example.com"})

	err := svc.Alert(context.Background(), "org-1", "subject", "body")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ops@example.com")

	recent := svc.Recent("org-1", 0)
	require.Len(t, recent, 1)
	assert.Equal(t, 1, recent[0].Delivered)
	assert.Empty(t, svc.Recent("org-2", 0))
}

func TestRecentIsNewestFirstAndBounded(t *testing.T) {
	svc := New(nil, "", nil)
	for i := 0; i < recentLimit+5; i++ {
		require.NoError(t, svc.Alert(context.Background(), "org-1", "s", "b"))
	}
	assert.Len(t, svc.Recent("org-1", 0), recentLimit)
	assert.Len(t, svc.Recent("org-1", 3), 3)
}
