package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/occasync/occasync"
)

type testAPI struct {
	t      *testing.T
	server *httptest.Server
	db     *occasync.Database
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := occasync.Connect(context.Background(), occasync.Config{
		SnapshotPath: filepath.Join(t.TempDir(), "snapshot.json"),
	})
	require.NoError(t, err)

	signer, err := occasync.NewTokenSigner("test-secret", nil)
	require.NoError(t, err)

	api := NewServer(db, signer, occasync.NewRateLimiter(nil),
		WithSettleDelay(10*time.Millisecond))

	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)

	return &testAPI{t: t, server: server, db: db}
}

// do sends a JSON request and decodes the JSON response
func (a *testAPI) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()

	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&reqBody).Encode(body))
	}

	req, err := http.NewRequest(method, a.server.URL+path, &reqBody)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	var decoded map[string]interface{}
	require.NoError(a.t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

// register creates a user and returns its token and id
func (a *testAPI) register(email, role string) (string, string) {
	a.t.Helper()

	status, body := a.do("POST", "/api/auth/register", "", map[string]interface{}{
		"email":    email,
		"password": "password123",
		"company":  "Test Co",
		"role":     role,
	})
	require.Equal(a.t, http.StatusCreated, status, "register failed: %v", body)

	user := body["user"].(map[string]interface{})
	return body["token"].(string), user["id"].(string)
}

// makeAdmin promotes a user directly in the store and returns a fresh
// token carrying the admin role
func (a *testAPI) makeAdmin(email string) string {
	a.t.Helper()

	a.register(email, "buyer")

	ctx := context.Background()
	_, err := a.db.Collection("users").UpdateOne(ctx,
		occasync.Filter{"email": email},
		occasync.Update{Set: occasync.Record{"role": "admin"}})
	require.NoError(a.t, err)

	status, body := a.do("POST", "/api/auth/login", "", map[string]interface{}{
		"email":    email,
		"password": "password123",
	})
	require.Equal(a.t, http.StatusOK, status)
	return body["token"].(string)
}

func (a *testAPI) createListing(token string, price interface{}) string {
	a.t.Helper()

	status, body := a.do("POST", "/api/listings", token, map[string]interface{}{
		"title":       "Industrial rack",
		"description": "Heavy duty industrial rack in good shape",
		"category":    "logistique",
		"price":       price,
	})
	require.Equal(a.t, http.StatusCreated, status, "create listing failed: %v", body)
	return body["listing"].(map[string]interface{})["id"].(string)
}

func TestRegisterLoginFlow(t *testing.T) {
	api := newTestAPI(t)

	status, body := api.do("POST", "/api/auth/register", "", map[string]interface{}{
		"email":    "buyer@example.com",
		"password": "password123",
		"company":  "Acme",
		"role":     "buyer",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["token"])

	user := body["user"].(map[string]interface{})
	assert.Equal(t, "buyer@example.com", user["email"])
	assert.Equal(t, "buyer", user["role"])
	assert.Nil(t, user["password"], "password hash must never leave the API")

	t.Run("login with same credentials", func(t *testing.T) {
		status, body := api.do("POST", "/api/auth/login", "", map[string]interface{}{
			"email":    "buyer@example.com",
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, status)
		assert.NotEmpty(t, body["token"])
	})

	t.Run("login with wrong password", func(t *testing.T) {
		status, _ := api.do("POST", "/api/auth/login", "", map[string]interface{}{
			"email":    "buyer@example.com",
			"password": "wrongpassword",
		})
		assert.Equal(t, http.StatusUnauthorized, status)
	})

	t.Run("token works on auth/me", func(t *testing.T) {
		token := body["token"].(string)
		status, me := api.do("GET", "/api/auth/me", token, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "buyer@example.com", me["email"])
		assert.Nil(t, me["password"])
	})
}

func TestRegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	t.Run("duplicate email", func(t *testing.T) {
		api.register("dup@example.com", "buyer")
		status, _ := api.do("POST", "/api/auth/register", "", map[string]interface{}{
			"email":    "dup@example.com",
			"password": "password123",
			"company":  "Other Co",
		})
		assert.Equal(t, http.StatusConflict, status)
	})

	t.Run("short password", func(t *testing.T) {
		status, _ := api.do("POST", "/api/auth/register", "", map[string]interface{}{
			"email":    "x@example.com",
			"password": "short",
			"company":  "Acme",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("bad email", func(t *testing.T) {
		status, _ := api.do("POST", "/api/auth/register", "", map[string]interface{}{
			"email":    "not-an-email",
			"password": "password123",
			"company":  "Acme",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown role becomes buyer", func(t *testing.T) {
		status, body := api.do("POST", "/api/auth/register", "", map[string]interface{}{
			"email":    "roley@example.com",
			"password": "password123",
			"company":  "Acme",
			"role":     "superuser",
		})
		require.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "buyer", body["user"].(map[string]interface{})["role"])
	})
}

func TestListingPriceCoercion(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("seller@example.com", "seller")

	// Price arrives as a string, as form-driven clients send it
	id := api.createListing(token, "100")

	status, body := api.do("GET", "/api/listings/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	listing := body["listing"].(map[string]interface{})
	assert.Equal(t, 100.0, listing["price"], "string price must be stored as a number")

	t.Run("range filter includes it", func(t *testing.T) {
		status, body := api.do("GET", "/api/listings?minPrice=50&maxPrice=150", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 1)
	})

	t.Run("range filter excludes it", func(t *testing.T) {
		status, body := api.do("GET", "/api/listings?maxPrice=99", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 0)
	})

	t.Run("non-numeric price rejected", func(t *testing.T) {
		status, _ := api.do("POST", "/api/listings", token, map[string]interface{}{
			"title":       "Bad price",
			"description": "This listing has a broken price",
			"category":    "autre",
			"price":       "cheap",
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestListingSearchAndFilters(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("seller@example.com", "seller")

	create := func(title, desc, category string, price float64) {
		status, _ := api.do("POST", "/api/listings", token, map[string]interface{}{
			"title":       title,
			"description": desc,
			"category":    category,
			"price":       price,
		})
		require.Equal(t, http.StatusCreated, status)
	}

	create("Forklift 2T", "Reliable warehouse forklift for sale", "logistique", 5000)
	create("Office desk", "Solid wood desk, lightly used in office", "mobilier", 120)
	create("Pallet truck", "Manual pallet truck, forklift alternative", "logistique", 300)

	t.Run("search matches title or description", func(t *testing.T) {
		status, body := api.do("GET", "/api/listings?search=forklift", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 2, "case-insensitive search over title and description")
	})

	t.Run("category filter", func(t *testing.T) {
		status, body := api.do("GET", "/api/listings?category=mobilier", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 1)
	})

	t.Run("category all is no filter", func(t *testing.T) {
		status, body := api.do("GET", "/api/listings?category=all", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 3)
	})

	t.Run("moderated listings disappear", func(t *testing.T) {
		admin := api.makeAdmin("admin@example.com")
		status, listBody := api.do("GET", "/api/listings?category=mobilier", "", nil)
		require.Equal(t, http.StatusOK, status)
		id := listBody["listings"].([]interface{})[0].(map[string]interface{})["id"].(string)

		status, _ = api.do("POST", "/api/admin/moderate-listing", admin, map[string]interface{}{
			"listingId": id,
			"status":    "suspended",
		})
		require.Equal(t, http.StatusOK, status)

		status, body := api.do("GET", "/api/listings?category=mobilier", "", nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["listings"], 0, "non-active listings are hidden from the public list")
	})
}

func TestListingViewsAndSellerJoin(t *testing.T) {
	api := newTestAPI(t)
	token, sellerID := api.register("seller@example.com", "seller")
	id := api.createListing(token, 100)

	status, body := api.do("GET", "/api/listings/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	listing := body["listing"].(map[string]interface{})

	seller := listing["seller"].(map[string]interface{})
	assert.Equal(t, sellerID, seller["id"])
	assert.Equal(t, "Test Co", seller["company"])
	assert.Nil(t, seller["email"], "seller join exposes only public fields")

	// Each fetch counts one view; the response shows the pre-increment value
	status, body = api.do("GET", "/api/listings/"+id, "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["listing"].(map[string]interface{})["views"])
}

func TestListingOwnership(t *testing.T) {
	api := newTestAPI(t)
	owner, _ := api.register("owner@example.com", "seller")
	other, _ := api.register("other@example.com", "seller")
	id := api.createListing(owner, 100)

	t.Run("non-owner cannot update", func(t *testing.T) {
		status, _ := api.do("PUT", "/api/listings/"+id, other, map[string]interface{}{
			"title": "Hijacked listing",
		})
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("owner can update", func(t *testing.T) {
		status, _ := api.do("PUT", "/api/listings/"+id, owner, map[string]interface{}{
			"price": 90.0,
		})
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("non-owner cannot delete", func(t *testing.T) {
		status, _ := api.do("DELETE", "/api/listings/"+id, other, nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("admin can delete", func(t *testing.T) {
		admin := api.makeAdmin("admin@example.com")
		status, _ := api.do("DELETE", "/api/listings/"+id, admin, nil)
		assert.Equal(t, http.StatusOK, status)

		status, _ = api.do("GET", "/api/listings/"+id, "", nil)
		assert.Equal(t, http.StatusNotFound, status)
	})
}

func TestMessagingAndConversations(t *testing.T) {
	api := newTestAPI(t)
	alice, aliceID := api.register("alice@example.com", "buyer")
	bob, bobID := api.register("bob@example.com", "seller")

	send := func(token, to, content string) map[string]interface{} {
		status, body := api.do("POST", "/api/messages", token, map[string]interface{}{
			"receiverId": to,
			"content":    content,
		})
		require.Equal(t, http.StatusCreated, status)
		return body["data"].(map[string]interface{})
	}

	first := send(alice, bobID, "Is the rack still available?")
	send(bob, aliceID, "Yes, it is")
	send(bob, aliceID, "Want to see it this week?")

	t.Run("conversation id is direction independent", func(t *testing.T) {
		second := send(bob, aliceID, "Ping")
		assert.Equal(t, first["conversationId"], second["conversationId"])
	})

	t.Run("messages sorted oldest first", func(t *testing.T) {
		status, body := api.do("GET", "/api/messages", alice, nil)
		require.Equal(t, http.StatusOK, status)
		messages := body["messages"].([]interface{})
		require.Len(t, messages, 4)
		assert.Equal(t, "Is the rack still available?",
			messages[0].(map[string]interface{})["content"])
	})

	t.Run("conversations group with unread counts", func(t *testing.T) {
		status, body := api.do("GET", "/api/conversations", alice, nil)
		require.Equal(t, http.StatusOK, status)
		conversations := body["conversations"].([]interface{})
		require.Len(t, conversations, 1)

		conv := conversations[0].(map[string]interface{})
		assert.Equal(t, 3.0, conv["unreadCount"], "all of bob's messages unread")
		assert.Equal(t, "Ping", conv["lastMessage"].(map[string]interface{})["content"])
	})

	t.Run("unread count endpoint", func(t *testing.T) {
		status, body := api.do("GET", "/api/messages/unread-count", alice, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 3.0, body["unreadCount"])
	})

	t.Run("mark read is receiver only", func(t *testing.T) {
		status, body := api.do("GET", "/api/messages", bob, nil)
		require.Equal(t, http.StatusOK, status)
		msgID := body["messages"].([]interface{})[1].(map[string]interface{})["id"].(string)

		// bob is the sender of this message, not the receiver
		status, _ = api.do("POST", "/api/messages/mark-read", bob,
			map[string]interface{}{"messageId": msgID})
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = api.do("POST", "/api/messages/mark-read", alice,
			map[string]interface{}{"messageId": msgID})
		assert.Equal(t, http.StatusOK, status)

		status, count := api.do("GET", "/api/messages/unread-count", alice, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, 2.0, count["unreadCount"])
	})
}

func TestTransactionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	seller, _ := api.register("seller@example.com", "seller")
	buyer, _ := api.register("buyer@example.com", "buyer")
	listingID := api.createListing(seller, 250)

	status, body := api.do("POST", "/api/transactions", buyer, map[string]interface{}{
		"listingId": listingID,
	})
	require.Equal(t, http.StatusCreated, status)

	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, 250.0, tx["amount"], "amount comes from the listing price")
	assert.Contains(t, tx["invoiceNumber"], "INV-")

	t.Run("settles to paid after the delay", func(t *testing.T) {
		txID := tx["id"].(string)
		require.Eventually(t, func() bool {
			status, body := api.do("GET", "/api/transactions", buyer, nil)
			if status != http.StatusOK {
				return false
			}
			for _, raw := range body["transactions"].([]interface{}) {
				rec := raw.(map[string]interface{})
				if rec["id"] == txID && rec["status"] == "paid" {
					return true
				}
			}
			return false
		}, 2*time.Second, 20*time.Millisecond)
	})

	t.Run("seller sees the transaction too", func(t *testing.T) {
		status, body := api.do("GET", "/api/transactions", seller, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["transactions"], 1)
	})

	t.Run("no self purchase", func(t *testing.T) {
		status, _ := api.do("POST", "/api/transactions", seller, map[string]interface{}{
			"listingId": listingID,
		})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("status update is seller or admin only", func(t *testing.T) {
		txID := tx["id"].(string)

		status, _ := api.do("PUT", "/api/transactions/"+txID+"/status", buyer,
			map[string]interface{}{"status": "shipped"})
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = api.do("PUT", "/api/transactions/"+txID+"/status", seller,
			map[string]interface{}{"status": "shipped"})
		assert.Equal(t, http.StatusOK, status)

		status, _ = api.do("PUT", "/api/transactions/"+txID+"/status", seller,
			map[string]interface{}{"status": "lost-in-transit"})
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestAdminGating(t *testing.T) {
	api := newTestAPI(t)
	user, _ := api.register("user@example.com", "buyer")
	admin := api.makeAdmin("admin@example.com")

	paths := []string{"/api/admin/users", "/api/admin/listings", "/api/admin/transactions"}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			status, _ := api.do("GET", path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, status, "anonymous")

			status, _ = api.do("GET", path, user, nil)
			assert.Equal(t, http.StatusForbidden, status, "non-admin")

			status, _ = api.do("GET", path, admin, nil)
			assert.Equal(t, http.StatusOK, status, "admin")
		})
	}

	t.Run("user list strips passwords", func(t *testing.T) {
		status, body := api.do("GET", "/api/admin/users", admin, nil)
		require.Equal(t, http.StatusOK, status)
		for _, raw := range body["users"].([]interface{}) {
			assert.Nil(t, raw.(map[string]interface{})["password"])
		}
	})

	t.Run("verify user", func(t *testing.T) {
		status, me := api.do("GET", "/api/auth/me", user, nil)
		require.Equal(t, http.StatusOK, status)
		require.Equal(t, false, me["verified"])

		status, _ = api.do("POST", "/api/admin/verify-user", admin, map[string]interface{}{
			"userId":   me["id"],
			"verified": true,
		})
		require.Equal(t, http.StatusOK, status)

		status, me = api.do("GET", "/api/auth/me", user, nil)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, true, me["verified"])
	})
}

func TestRateLimiting(t *testing.T) {
	api := newTestAPI(t)

	// All anonymous test requests share the "unknown" client key, so the
	// register budget of 20 per window is exhausted quickly
	var last int
	for i := 0; i < 21; i++ {
		last, _ = api.do("POST", "/api/auth/register", "", map[string]interface{}{
			"email":    fmt.Sprintf("u%d@example.com", i),
			"password": "password123",
			"company":  "Acme",
		})
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t)
	token, _ := api.register("user@example.com", "seller")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   interface{}
		want   int
	}{
		{"validation", "POST", "/api/listings", token,
			map[string]interface{}{"title": "x"}, http.StatusBadRequest},
		{"unauthorized", "GET", "/api/auth/me", "", nil, http.StatusUnauthorized},
		{"not found", "GET", "/api/listings/nope", "", nil, http.StatusNotFound},
		{"unknown route", "GET", "/api/nope", "", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, api.server.URL+tt.path, bytes.NewReader(mustJSON(t, tt.body)))
			require.NoError(t, err)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, err := api.server.Client().Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
