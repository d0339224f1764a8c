package testutil

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// Fixture values shared by tests.
const (
	TestEmail    = "a@x"
	TestPassword = "p"
	TestToken    = "tok-1"
)

// TestUser returns the current-user payload for TestEmail.
func TestUser() map[string]interface{} {
	return map[string]interface{}{
		"id":           1,
		"email":        TestEmail,
		"first_name":   "A",
		"last_name":    "X",
		"is_active":    true,
		"is_superuser": false,
		"date_joined":  "2024-01-01T00:00:00Z",
	}
}

// TestCard returns a stored question with an MBQL dataset query.
func TestCard(id int, name string) map[string]interface{} {
	return map[string]interface{}{
		"id":      id,
		"name":    name,
		"type":    "question",
		"display": "table",
		"dataset_query": map[string]interface{}{
			"database": 2,
			"type":     "query",
			"query":    map[string]interface{}{},
		},
	}
}

// TestCollection returns a collection payload. A zero parent means a
// top-level collection.
func TestCollection(id int, name string, parent int) map[string]interface{} {
	c := map[string]interface{}{
		"id":       id,
		"name":     name,
		"color":    "#509EE3",
		"slug":     name,
		"archived": false,
		"location": "/",
	}
	if parent != 0 {
		c["parent_id"] = parent
	}
	return c
}

// WithSession registers the login, current-user and logout endpoints. Login
// accepts TestEmail/TestPassword and issues TestToken; the current-user
// endpoint accepts only tokens that were issued and not logged out.
func (ms *MockServer) WithSession() {
	var loggedOut atomic.Bool

	ms.RegisterHandler("POST /api/session", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		var body struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return http.StatusBadRequest, map[string]string{"message": "bad login body"}
		}
		if body.Username != TestEmail || body.Password != TestPassword {
			return http.StatusUnauthorized, map[string]interface{}{
				"errors": map[string]string{"password": "did not match stored password"},
			}
		}
		loggedOut.Store(false)
		return http.StatusOK, map[string]string{"id": TestToken}
	})

	ms.RegisterHandler("GET /api/user/current", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		if r.Header.Get("X-Metabase-Session") != TestToken || loggedOut.Load() {
			return http.StatusUnauthorized, Raw("Unauthenticated")
		}
		return http.StatusOK, TestUser()
	})

	ms.RegisterHandler("DELETE /api/session", func(w http.ResponseWriter, r *http.Request) (int, interface{}) {
		loggedOut.Store(true)
		return http.StatusNoContent, nil
	})
}
