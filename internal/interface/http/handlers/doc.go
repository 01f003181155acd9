// Package handlers contains reusable HTTP building blocks for the API server:
// health checks, session tokens and middleware.
//
// # Health Checks
//
// The CompositeHealthChecker runs named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("postgres", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("redis", handlers.NewCacheCheck(cache))
//	checker.AddCheck("paystack", handlers.NewBreakerCheck(client.BreakerState))
//
// # Sessions
//
// Sessions issues and verifies HS256 tokens whose subject is the account ID.
// The account ID is read from the verified token only.
package handlers
