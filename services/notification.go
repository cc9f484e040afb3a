package services

import (
	"context"
	"fmt"

	"chatstatus-backend/config"
	"chatstatus-backend/models"
	"chatstatus-backend/store"

	"firebase.google.com/go/v4/messaging"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"
)

// Notification delivers membership events out-of-band: FCM push when the
// recipient registered a device token, SendGrid email when we know their
// address. Both channels are best-effort; failures are logged and dropped.
type Notification struct {
	store     store.Store
	messaging *messaging.Client // nil without Firebase
}

func NewNotification(st store.Store, msg *messaging.Client) *Notification {
	return &Notification{store: st, messaging: msg}
}

// NotifyRequestApproved tells a user their join request went through.
func (n *Notification) NotifyRequestApproved(ctx context.Context, group *models.Group, userID string) {
	user := n.loadUser(ctx, userID)
	if user == nil {
		return
	}

	title := fmt.Sprintf("Welcome to \"%s\"", group.Name)
	body := fmt.Sprintf("Your request to join \"%s\" was approved.", group.Name)

	n.sendPush(ctx, user.FCMToken, title, body, map[string]string{
		"type":     "request_approved",
		"group_id": group.ID,
	})
	n.sendEmail(user.Email, user.DisplayName, title, approvedEmailHTML(user.DisplayName, group.Name))
}

// NotifyMemberAdded tells a user an admin added them directly.
func (n *Notification) NotifyMemberAdded(ctx context.Context, group *models.Group, adder, target models.Principal) {
	user := n.loadUser(ctx, target.ID)
	if user == nil {
		return
	}

	title := fmt.Sprintf("You were added to \"%s\"", group.Name)
	body := fmt.Sprintf("%s added you to the group \"%s\"", displayName(adder), group.Name)

	n.sendPush(ctx, user.FCMToken, title, body, map[string]string{
		"type":     "member_added",
		"group_id": group.ID,
	})
	n.sendEmail(user.Email, user.DisplayName, title, addedEmailHTML(user.DisplayName, displayName(adder), group.Name))
}

func (n *Notification) loadUser(ctx context.Context, userID string) *models.User {
	doc, err := n.store.Get(ctx, "users/"+userID)
	if err != nil {
		logrus.WithError(err).WithField("user", userID).Debug("no profile for notification target")
		return nil
	}
	return models.UserFromDoc(doc)
}

func (n *Notification) sendPush(ctx context.Context, token, title, body string, data map[string]string) {
	if n.messaging == nil || token == "" {
		return
	}

	_, err := n.messaging.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
	})
	if err != nil {
		logrus.WithError(err).Warn("⚠️  FCM push failed")
		return
	}
	logrus.Debug("push notification sent")
}

func (n *Notification) sendEmail(toEmail, toName, subject, htmlBody string) {
	if config.AppConfig.SendGridAPIKey == "" || toEmail == "" {
		return
	}

	from := mail.NewEmail(config.AppConfig.AppName, config.AppConfig.SendGridFrom)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, subject, htmlBody)

	client := sendgrid.NewSendClient(config.AppConfig.SendGridAPIKey)
	resp, err := client.Send(message)
	if err != nil {
		logrus.WithError(err).Warn("⚠️  Email send failed")
		return
	}
	if resp.StatusCode >= 300 {
		logrus.Warnf("⚠️  SendGrid returned status %d", resp.StatusCode)
		return
	}
	logrus.WithField("to", toEmail).Debug("email sent")
}

func approvedEmailHTML(userName, groupName string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: white; border-radius: 12px; padding: 32px;">
		<h2 style="color: #4A90D9; margin-top: 0;">You're in!</h2>
		<p>Hi <strong>%s</strong>,</p>
		<p>Your request to join <strong>"%s"</strong> was approved. Open the app to say hello.</p>
		<p style="color: #999; font-size: 12px; margin-top: 24px;">— %s</p>
	</div>
</body>
</html>`, userName, groupName, config.AppConfig.AppName)
}

func addedEmailHTML(userName, adderName, groupName string) string {
	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: white; border-radius: 12px; padding: 32px;">
		<h2 style="color: #4A90D9; margin-top: 0;">You've been added to a group</h2>
		<p>Hi <strong>%s</strong>,</p>
		<p><strong>%s</strong> added you to <strong>"%s"</strong>.</p>
		<p style="color: #999; font-size: 12px; margin-top: 24px;">— %s</p>
	</div>
</body>
</html>`, userName, adderName, groupName, config.AppConfig.AppName)
}
