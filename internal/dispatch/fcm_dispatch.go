package dispatch

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

type messagingClient interface {
	Send(ctx context.Context, msg *messaging.Message) (string, error)
}

// FCMNotifier sends push notifications through Firebase Cloud Messaging.
type FCMNotifier struct {
	client messagingClient
}

// NewFCMNotifier uses credentialsFile when set and application-default credentials otherwise.
func NewFCMNotifier(ctx context.Context, projectID, credentialsFile string) (*FCMNotifier, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return &FCMNotifier{client: client}, nil
}

func (f *FCMNotifier) Send(ctx context.Context, to Recipient, msg Message) error {
	if to.Token == "" {
		return ErrNoToken
	}
	_, err := f.client.Send(ctx, &messaging.Message{
		Token: to.Token,
		Data:  msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{Priority: "high"},
	})
	if err != nil {
		return fmt.Errorf("fcm send to rider %s: %w", to.RiderID, err)
	}
	return nil
}
