//go:build integration

package e2e

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/user-service/internal/config"
	"github.com/WailSalutem-Health-Care/user-service/internal/email"
	httpserver "github.com/WailSalutem-Health-Care/user-service/internal/http"
	"github.com/WailSalutem-Health-Care/user-service/internal/messaging"
	"github.com/WailSalutem-Health-Care/user-service/internal/notification"
	"github.com/WailSalutem-Health-Care/user-service/internal/testutil"
	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

// DeliveredEmail is what the fake email provider received.
type DeliveredEmail struct {
	To      string
	Subject string
}

// FakeProvider stands in for the MailerSend API.
type FakeProvider struct {
	Server *httptest.Server

	mu     sync.Mutex
	emails []DeliveredEmail
}

func newFakeProvider() *FakeProvider {
	p := &FakeProvider{}
	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
			Subject string `json:"subject"`
		}
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil || len(msg.To) == 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			return
		}
		p.mu.Lock()
		p.emails = append(p.emails, DeliveredEmail{To: msg.To[0].Email, Subject: msg.Subject})
		p.mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	return p
}

// WaitFor polls until an email with the given recipient and subject arrives
// or the deadline passes.
func (p *FakeProvider) WaitFor(t *testing.T, recipient, subject string, timeout time.Duration) DeliveredEmail {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		for _, e := range p.emails {
			if e.To == recipient && e.Subject == subject {
				p.mu.Unlock()
				return e
			}
		}
		p.mu.Unlock()
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("No %q email to %s within %v", subject, recipient, timeout)
	return DeliveredEmail{}
}

// TestServer represents a complete E2E test environment: real PostgreSQL,
// real RabbitMQ, the notification consumer, and a fake email provider.
type TestServer struct {
	Server   *httptest.Server
	Client   *testutil.HTTPTestClient
	DB       *sql.DB
	Broker   *messaging.Broker
	Provider *FakeProvider

	cancel context.CancelFunc
	done   chan struct{}
}

func rabbitConfig(t *testing.T) config.RabbitMQConfig {
	t.Helper()

	host := os.Getenv("TEST_RABBITMQ_HOST")
	if host == "" {
		t.Skip("TEST_RABBITMQ_HOST not set")
	}

	cfg := config.Default().RabbitMQ
	cfg.Host = host
	if port := os.Getenv("TEST_RABBITMQ_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			t.Fatalf("Invalid TEST_RABBITMQ_PORT: %v", err)
		}
		cfg.Port = p
	}
	cfg.MaxRetries = 3
	cfg.RetryDelay = 500 * time.Millisecond
	return cfg
}

// SetupE2ETest wires the service the way cmd/api does, against test backends.
func SetupE2ETest(t *testing.T) *TestServer {
	t.Helper()

	rabbitCfg := rabbitConfig(t)
	db := testutil.SetupTestDB(t)
	testutil.CleanupTestDB(t, db)

	broker := messaging.NewBroker(rabbitCfg)
	if err := broker.ConnectWithRetry(context.Background(), rabbitCfg.MaxRetries, rabbitCfg.RetryDelay); err != nil {
		db.Close()
		t.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	provider := newFakeProvider()
	emailCfg := config.Default().Email
	emailCfg.APIKey = "mlsn.e2e"
	emailCfg.BaseURL = provider.Server.URL
	gateway := email.NewGateway(emailCfg, provider.Server.Client())

	consumer := notification.NewConsumer(broker, gateway, notification.Options{MaxRedeliveries: 2})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx)
	}()

	publisher := messaging.NewUserEventPublisher(broker, nil)
	router := httpserver.SetupRouter(httpserver.Dependencies{
		ServiceName: "user-service-e2e",
		Users:       users.NewHandler(users.NewService(users.NewRepository(db), publisher)),
		Broker:      broker,
		Email:       gateway,
		Consumer:    consumer,
	})
	server := httptest.NewServer(router)

	return &TestServer{
		Server:   server,
		Client:   testutil.NewHTTPTestClient(server.URL),
		DB:       db,
		Broker:   broker,
		Provider: provider,
		cancel:   cancel,
		done:     done,
	}
}

// Cleanup stops the consumer before closing the broker, then releases the rest.
func (ts *TestServer) Cleanup(t *testing.T) {
	t.Helper()

	ts.Server.Close()
	ts.cancel()
	<-ts.done
	if err := ts.Broker.Close(); err != nil {
		t.Logf("Warning: broker close: %v", err)
	}
	ts.Provider.Server.Close()
	testutil.CleanupTestDB(t, ts.DB)
	ts.DB.Close()
}
