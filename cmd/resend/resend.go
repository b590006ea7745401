package main

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

var errNotPublished = errors.New("event was not published")

type userLoader interface {
	GetByID(ctx context.Context, id int64) (*users.User, error)
}

// resend republishes eventType for the stored user. Deletions cannot be
// replayed because the row no longer exists.
func resend(ctx context.Context, loader userLoader, publisher messaging.EventPublisher, id int64, eventType messaging.EventType) error {
	switch eventType {
	case messaging.EventUserCreated, messaging.EventUserUpdated:
	default:
		return fmt.Errorf("unsupported event type %q", eventType)
	}

	user, err := loader.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("load user %d: %w", id, err)
	}

	if !publisher.Publish(ctx, eventType, user.EventData()) {
		return errNotPublished
	}

	log.Printf("✓ Republished %s for user %d (%s)", eventType, user.ID, user.Email)
	return nil
}
