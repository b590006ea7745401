package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/WailSalutem-Health-Care/user-service/internal/config"
	"github.com/WailSalutem-Health-Care/user-service/internal/db"
	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/telemetry"
	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

var (
	userID    int64
	eventType string
	timeout   time.Duration
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "resend",
		Short: "Republish a user event so the notification email is sent again",
		Long: `resend loads a user from the database and publishes a fresh event for it.
Use it when a notification was dead-lettered or the broker was down at the time of the change.`,
		SilenceUsage: true,
		RunE:         runResend,
	}

	rootCmd.Flags().Int64Var(&userID, "user-id", 0, "ID of the user to republish (required)")
	rootCmd.Flags().StringVar(&eventType, "event", string(messaging.EventUserCreated), "event type: user_created or user_updated")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall deadline")
	rootCmd.MarkFlagRequired("user-id")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runResend(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := telemetry.ConfigureLogging(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}
	telemetry.SetupPropagation()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	broker := messaging.NewBroker(cfg.RabbitMQ, messaging.WithPublishOnly())
	defer broker.Close()
	if err := broker.ConnectWithRetry(ctx, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay); err != nil {
		return err
	}

	return resend(ctx, users.NewRepository(database), messaging.NewUserEventPublisher(broker, nil),
		userID, messaging.EventType(eventType))
}
