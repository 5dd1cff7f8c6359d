// Package alert fans status flips out to registered devices over FCM.
package alert

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/adonese/storewatch/track_fields"
)

// TokenSource supplies the device tokens to notify. The store implements it;
// config-seeded token lists are wrapped with StaticTokens.
type TokenSource interface {
	ListDeviceTokens(ctx context.Context) ([]string, error)
}

// StaticTokens adapts a fixed token list from config.
type StaticTokens []string

func (s StaticTokens) ListDeviceTokens(context.Context) ([]string, error) {
	return s, nil
}

// Service sends push notifications for status flips.
type Service struct {
	App    *firebase.App
	Tokens TokenSource
	Logger *logrus.Logger
}

// New initializes the firebase app from the credentials file. A missing or
// unreadable credentials file disables alerts rather than failing boot.
func New(ctx context.Context, cfg track_fields.Config, tokens TokenSource, logger *logrus.Logger) *Service {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.FirebaseCredsPath))
	if err != nil {
		if logger != nil {
			logger.Printf("alerts disabled, firebase init failed: %v", err)
		}
		return &Service{Tokens: tokens, Logger: logger}
	}
	return &Service{App: app, Tokens: tokens, Logger: logger}
}

// Enabled reports whether pushes can be sent.
func (s *Service) Enabled() bool {
	return s != nil && s.App != nil
}

// Notify pushes one status flip to every registered device. Send failures
// are logged per token and never returned: a dead token must not fail a run.
func (s *Service) Notify(ctx context.Context, flip track_fields.StatusFlip) {
	if !s.Enabled() {
		return
	}
	client, err := s.App.Messaging(ctx)
	if err != nil {
		s.Logger.Printf("error getting Messaging client: %v", err)
		return
	}
	tokens, err := s.Tokens.ListDeviceTokens(ctx)
	if err != nil {
		s.Logger.Printf("error listing device tokens: %v", err)
		return
	}

	title := fmt.Sprintf("%s (%s) is now %s", flip.Brand, flip.Location, flip.To)
	body := fmt.Sprintf("%s on %s flipped from %q to %q", flip.Brand, flip.Tab, flip.From, flip.To)
	data := map[string]string{
		"type":     "status_flip",
		"tab":      flip.Tab,
		"brand":    flip.Brand,
		"location": flip.Location,
		"link":     flip.Link,
		"from":     flip.From,
		"to":       flip.To,
	}

	for _, token := range tokens {
		message := &messaging.Message{
			Token:        token,
			Notification: &messaging.Notification{Title: title, Body: body},
			Data:         data,
		}
		if _, err := client.Send(ctx, message); err != nil {
			s.Logger.WithFields(logrus.Fields{"token": token, "error": err.Error()}).Warn("push failed")
		}
	}
}
