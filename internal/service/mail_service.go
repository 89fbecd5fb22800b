package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/learnxy-api/internal/models"
	"github.com/noah-isme/learnxy-api/pkg/jobs"
	"github.com/noah-isme/learnxy-api/pkg/mailer"
	"github.com/noah-isme/learnxy-api/pkg/otp"
)

const mailJobType = "email"

// MailService renders account emails and hands them to a background queue.
type MailService struct {
	mailer   mailer.Mailer
	queue    *jobs.Queue
	siteName string
	logger   *zap.Logger
}

// NewMailService builds the service and its delivery queue. The queue must be
// started with Start before messages are delivered asynchronously.
func NewMailService(m mailer.Mailer, siteName string, queueCfg jobs.QueueConfig, logger *zap.Logger) *MailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if siteName == "" {
		siteName = "Learnxy"
	}
	svc := &MailService{mailer: m, siteName: siteName, logger: logger}
	queueCfg.Logger = logger
	svc.queue = jobs.NewQueue("mail", svc.deliver, queueCfg)
	return svc
}

// Start launches the delivery workers.
func (s *MailService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the delivery workers.
func (s *MailService) Stop() {
	s.queue.Stop()
}

// SendActivation queues the account activation code.
func (s *MailService) SendActivation(user *models.User, token string) error {
	return s.enqueue(user, "Activate your account", fmt.Sprintf(
		"Hello %s,\n\nYour activation code is %s. It expires in %d minutes.\n\nIf you did not create an account, ignore this email.",
		user.Name, token, otp.ExpirySeconds/60))
}

// SendConfirmation queues the activation confirmation.
func (s *MailService) SendConfirmation(user *models.User) error {
	return s.enqueue(user, "Account activated", fmt.Sprintf(
		"Hello %s,\n\nYour account has been activated. You can now sign in.", user.Name))
}

// SendPasswordReset queues the password reset code.
func (s *MailService) SendPasswordReset(user *models.User, token string) error {
	return s.enqueue(user, "Reset your password", fmt.Sprintf(
		"Hello %s,\n\nUse the code %s to reset your password. It expires in %d minutes.\n\nIf you did not ask for a reset, ignore this email.",
		user.Name, token, otp.ExpirySeconds/60))
}

// SendPasswordChanged queues the password change notice.
func (s *MailService) SendPasswordChanged(user *models.User) error {
	return s.enqueue(user, "Your password was changed", fmt.Sprintf(
		"Hello %s,\n\nThe password for your account was just changed. If this was not you, reset it immediately.", user.Name))
}

// SendEmailReset queues the code that lets a user move to a new address.
func (s *MailService) SendEmailReset(user *models.User, token string) error {
	return s.enqueue(user, "Change your email address", fmt.Sprintf(
		"Hello %s,\n\nUse the code %s to change the email address on your account. It expires in %d minutes.\n\nIf you did not ask for this, ignore this email.",
		user.Name, token, otp.ExpirySeconds/60))
}

// SendEmailChanged queues the notice sent to the new address after a change.
func (s *MailService) SendEmailChanged(user *models.User) error {
	return s.enqueue(user, "Your email address was changed", fmt.Sprintf(
		"Hello %s,\n\nYour account now uses %s as its email address. If this was not you, contact the school office.",
		user.Name, user.Email))
}

func (s *MailService) enqueue(user *models.User, subject, body string) error {
	msg := mailer.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("[%s] %s", s.siteName, subject),
		Body:    strings.TrimSpace(body) + "\n\n" + s.siteName + "\n",
	}
	if err := s.queue.Submit(mailJobType, msg); err != nil {
		s.logger.Warn("mail queue rejected message", zap.String("subject", subject), zap.Error(err))
		return err
	}
	return nil
}

func (s *MailService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mailer.Message)
	if !ok {
		return fmt.Errorf("unexpected mail payload %T", job.Payload)
	}
	return s.mailer.Send(ctx, msg)
}
