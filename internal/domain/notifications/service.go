// Package notifications mails operator alerts about payroll periods that
// need manual repair.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const subjectPrefix = "[nomina] "

// recentLimit bounds the alerts kept for inspection.
const recentLimit = 100

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Alert struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organizationId"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	Delivered      int       `json:"delivered"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Service struct {
	Mailer     Mailer
	From       string
	Recipients []string

	mu     sync.Mutex
	recent []Alert
	now    func() time.Time
}

func New(mailer Mailer, from string, recipients []string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{Mailer: mailer, From: from, Recipients: recipients, now: time.Now}
}

// Alert mails every recipient. Delivery failures are joined into the
// returned error; the alert is kept either way.
func (s *Service) Alert(ctx context.Context, orgID, subject, body string) error {
	alert := Alert{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		Subject:        subjectPrefix + subject,
		Body:           body,
		CreatedAt:      s.now().UTC(),
	}

	var errs []error
	if s.Mailer != nil {
		for _, to := range s.Recipients {
			to = strings.TrimSpace(to)
			if to == "" {
				continue
			}
			if err := s.Mailer.Send(ctx, s.From, to, alert.Subject, alert.Body); err != nil {
				slog.WarnContext(ctx, "alert email send failed", "to", to, "err", err)
				errs = append(errs, fmt.Errorf("send to %s: %w", to, err))
				continue
			}
			alert.Delivered++
		}
	}

	s.mu.Lock()
	s.recent = append(s.recent, alert)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}

// Recent lists the organization's kept alerts, newest first.
func (s *Service) Recent(orgID string, limit int) []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Alert
	for i := len(s.recent) - 1; i >= 0; i-- {
		if s.recent[i].OrganizationID != orgID {
			continue
		}
		out = append(out, s.recent[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
