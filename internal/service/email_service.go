package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"net/mail"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"habitheroes/internal/models"
)

// EmailService sends parent notifications through Amazon SES
type EmailService struct {
	client  *sesv2.Client
	from    string
	baseURL string
	debug   bool
}

// message is one notification, rendered to both HTML and plain text
type message struct {
	Subject string
	Heading string
	Body    string
	Link    string
	Action  string
}

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #2d2d2d; background: #fff8ec; padding: 24px;">
	<div style="max-width: 560px; margin: 0 auto; background: #ffffff; border-radius: 8px; overflow: hidden;">
		<h1 style="margin: 0; padding: 18px 24px; background: #f5a623; color: #ffffff; font-size: 20px;">{{.Heading}}</h1>
		<p style="padding: 0 24px; line-height: 1.5;">{{.Body}}</p>
		<p style="padding: 8px 24px 24px;"><a href="{{.Link}}" style="background: #f5a623; color: #ffffff; padding: 10px 22px; border-radius: 6px; text-decoration: none;">{{.Action}}</a></p>
	</div>
	<p style="text-align: center; font-size: 12px; color: #8a8a8a;">Sent automatically by Habit Heroes.</p>
</body>
</html>
`))

// NewEmailService creates a new email service. Without a from address the
// service is created disabled and every send is skipped.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName, appBaseURL string, debug bool) (*EmailService, error) {
	s := &EmailService{baseURL: appBaseURL, debug: debug}
	if fromEmail == "" {
		log.Println("Email service disabled: SES_FROM_EMAIL not configured")
		return s, nil
	}
	s.from = (&mail.Address{Name: fromName, Address: fromEmail}).String()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	s.client = sesv2.NewFromConfig(cfg)

	log.Printf("Email service enabled: from=%s, region=%s", s.from, awsRegion)
	return s, nil
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.client != nil
}

// HabitSubmitted tells parents a habit is waiting for their approval
func (s *EmailService) HabitSubmitted(ctx context.Context, parents []models.User, child *models.Child, habit *models.Habit) error {
	return s.send(ctx, parents, message{
		Subject: fmt.Sprintf("%s completed %q", child.Name, habit.Name),
		Heading: "Habit awaiting approval",
		Body:    fmt.Sprintf("%s just marked %s %s as done and is waiting for your approval.", child.Name, habit.Icon, habit.Name),
		Link:    s.baseURL + "/parent/approvals",
		Action:  "Review now",
	})
}

// RewardClaimed tells parents a child wants to redeem a reward
func (s *EmailService) RewardClaimed(ctx context.Context, parents []models.User, child *models.Child, reward *models.Reward) error {
	return s.send(ctx, parents, message{
		Subject: fmt.Sprintf("%s claimed %q", child.Name, reward.Title),
		Heading: "Reward claimed",
		Body:    fmt.Sprintf("%s wants to redeem %s for %d points.", child.Name, reward.Title, reward.Cost),
		Link:    s.baseURL + "/parent/rewards",
		Action:  "Review claim",
	})
}

func (m message) html() (string, error) {
	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, m); err != nil {
		return "", fmt.Errorf("failed to render email: %w", err)
	}
	return buf.String(), nil
}

func (m message) text() string {
	return fmt.Sprintf("%s\n\nReview it here: %s\n", m.Body, m.Link)
}

// send delivers one message addressed to every parent
func (s *EmailService) send(ctx context.Context, parents []models.User, m message) error {
	if !s.IsEnabled() {
		if s.debug {
			log.Printf("[DEBUG] email disabled, skipping: %s", m.Subject)
		}
		return nil
	}

	to := make([]string, 0, len(parents))
	for _, p := range parents {
		if p.Email != "" {
			to = append(to, p.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}

	htmlBody, err := m.html()
	if err != nil {
		return err
	}
	utf8 := func(s string) *types.Content {
		return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
	}

	out, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: to},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8(m.Subject),
				Body:    &types.Body{Html: utf8(htmlBody), Text: utf8(m.text())},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send %q to %d parent(s): %w", m.Subject, len(to), err)
	}

	if s.debug && out.MessageId != nil {
		log.Printf("[DEBUG] SES message id: %s", *out.MessageId)
	}
	return nil
}
