package mailer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-service/internal/domain/entity"
)

// ErrBadMessage marks a delivery that can never succeed and must not be requeued.
var ErrBadMessage = errors.New("bad message")

// Dispatcher turns user events into emails.
type Dispatcher struct {
	Sender  Sender
	AppName string
	Logger  *logrus.Logger
}

func NewDispatcher(sender Sender, appName string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{Sender: sender, AppName: appName, Logger: logger}
}

// Handle processes one queue message. Errors wrapping ErrBadMessage are permanent;
// any other error is a send failure worth retrying.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var ev entity.UserEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrBadMessage, err)
	}

	switch ev.Type {
	case entity.UserCreated:
		if ev.Email == "" {
			return fmt.Errorf("%w: user.created without email", ErrBadMessage)
		}
		msg, err := RenderWelcome(WelcomeData{AppName: d.AppName, Name: ev.Name, Email: ev.Email})
		if err != nil {
			return fmt.Errorf("%w: render welcome: %v", ErrBadMessage, err)
		}
		if err := d.Sender.Send(ctx, msg.To, msg.Subject, msg.Text, msg.HTML); err != nil {
			return err
		}
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{"user_id": ev.UserID, "event": ev.Type}).Info("welcome email sent")
		}
	default:
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{"user_id": ev.UserID, "event": ev.Type}).Debug("event ignored")
		}
	}
	return nil
}
