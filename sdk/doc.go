// Package sdk is a typed Go client for the Metabase business-intelligence
// service. It authenticates to an instance, reads and writes collections,
// dashboards, cards and databases, and runs SQL or structured (MBQL) queries.
//
// # Basic Usage
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/birbparty/metabase-go/models"
//	    "github.com/birbparty/metabase-go/sdk"
//	)
//
//	func main() {
//	    client, err := sdk.NewClient(sdk.DefaultConfig().
//	        WithBaseURL("https://bi.example.com"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    ctx := context.Background()
//	    err = client.Authenticate(ctx, models.EmailPassword{
//	        Email:    "analyst@example.com",
//	        Password: "secret",
//	    })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    card, err := client.GetCard(ctx, 42)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    log.Println(card.Name)
//	}
//
// # Configuration
//
// The client is configured with a fluent builder. Only the base URL is
// required:
//
//	config := sdk.DefaultConfig().
//	    WithBaseURL("https://bi.example.com").
//	    WithTimeout(10 * time.Second).
//	    WithHeader("X-Team", "growth").
//	    WithCache(true).
//	    WithRequestsPerSecond(20, 5)
//
// The library never reads environment variables; see examples/export for a
// program that loads its settings from the environment.
//
// # Authentication
//
// Three kinds of credentials are accepted: models.EmailPassword logs in and
// keeps the returned session token, models.SessionToken reuses an existing
// token and models.APIKey sends an API key with every request. Every call
// except Authenticate and HealthCheck fails fast with an Unauthenticated
// error, without touching the network, until a session exists. A 401 from
// the server clears the session before the error is returned.
//
// # Queries
//
// Native queries use {{name}} placeholders and optional [[ ... ]] sections:
//
//	result, err := client.ExecuteSQLWithParams(ctx, 1,
//	    "SELECT * FROM orders WHERE status = {{status}} LIMIT 10",
//	    map[string]interface{}{"status": "done"})
//
// Structured queries are built with the mbql package:
//
//	q, err := mbql.FromTable(5).
//	    Filter(mbql.Field(7).GreaterThan(10)).
//	    Aggregate(mbql.Count()).
//	    OrderBy(mbql.Field(7), mbql.Asc).
//	    Limit(20).
//	    Build()
//	result, err := client.ExecuteMBQL(ctx, q)
//
// Query results are not cached unless a call asks for it with
// ExecuteMBQLWith and QueryOptions.
//
// # Caching
//
// With caching on, entity reads (cards, collections, dashboards, databases
// and their metadata) are served from an in-process cache. Concurrent reads
// of the same key share one request. Every successful write drops the
// entries it may have changed before it returns.
//
// # Error Handling
//
// Every error returned by the client is an *Error carrying a Kind:
//
//	card, err := client.GetCard(ctx, 42)
//	switch {
//	case sdk.IsNotFound(err):
//	    // no such card
//	case errors.Is(err, sdk.ErrUnauthenticated):
//	    // call Authenticate first
//	case sdk.IsRetryable(err):
//	    // transient, retries were exhausted
//	}
//
// # Observability
//
// Logs are written through logrus (WithLogger), request, retry, cache and
// session metrics are registered with prometheus (WithMetricsRegisterer) and
// every call opens an OpenTelemetry span on the global tracer provider.
//
// # Thread Safety
//
// A Client is safe for concurrent use by multiple goroutines.
package sdk
