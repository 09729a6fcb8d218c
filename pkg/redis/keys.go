package redis

import "fmt"

// DefaultStockEventStream is the outbox stream that inventory writes append to.
const DefaultStockEventStream = "pharmacy:stock_events"

// RateLimitKey names the sliding window of one subject (ip or username) on a route scope.
func RateLimitKey(scope, kind, subject string) string {
	return fmt.Sprintf("pharmacy:rate_limit:%s:%s:%s", scope, kind, subject)
}

// LoginFailureKey counts consecutive failed logins of a username.
func LoginFailureKey(username string) string {
	return fmt.Sprintf("pharmacy:login:failures:%s", username)
}
