//go:build integration

package e2e

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/WailSalutem-Health-Care/user-service/internal/testutil"
	"github.com/WailSalutem-Health-Care/user-service/internal/users"
)

func createUser(t *testing.T, ts *TestServer, name, email string) users.User {
	t.Helper()

	resp := ts.Client.POST(t, "/api/users", map[string]string{"name": name, "email": email})
	if resp.StatusCode != http.StatusCreated {
		testutil.AssertStatusCode(t, resp, http.StatusCreated)
		t.FailNow()
	}

	var body struct {
		User users.User `json:"user"`
	}
	testutil.DecodeJSON(t, resp, &body)
	return body.User
}

func TestE2E_CreateUserSendsWelcomeEmail(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	createUser(t, ts, "Ada", "ada@example.com")

	ts.Provider.WaitFor(t, "ada@example.com", "Welcome to Our Platform", 10*time.Second)
}

func TestE2E_UpdateAndDeleteSendEmails(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	user := createUser(t, ts, "Grace", "grace@example.com")
	path := fmt.Sprintf("/api/users/%d", user.ID)

	resp := ts.Client.PUT(t, path, map[string]string{"role": "admin"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.Body.Close()
	ts.Provider.WaitFor(t, "grace@example.com", "Account Updated", 10*time.Second)

	resp = ts.Client.DELETE(t, path)
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	resp.Body.Close()
	ts.Provider.WaitFor(t, "grace@example.com", "Account Deleted", 10*time.Second)
}

func TestE2E_HealthReportsConnected(t *testing.T) {
	ts := SetupE2ETest(t)
	defer ts.Cleanup(t)

	var body map[string]string
	testutil.DecodeJSON(t, ts.Client.GET(t, "/api/health"), &body)
	if body["rabbitmq_status"] != "connected" || body["email_status"] != "initialized" {
		t.Errorf("Unexpected health: %v", body)
	}
}
