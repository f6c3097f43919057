// Kirogw is an API gateway in front of the Kiro assistant upstream.
//
// It accepts OpenAI-compatible and Anthropic-compatible chat requests,
// translates them to the upstream event-stream protocol, and manages a
// pool of upstream accounts with automatic credential refresh.
//
// Usage:
//
//	# Start the gateway with default configuration
//	kirogw run
//
//	# Start with a custom configuration file
//	kirogw run --config /etc/kirogw/config.yaml
//
//	# Initialize the database and create the first admin user
//	kirogw init-db
//	kirogw create-admin --username ops
//
//	# Manage client API keys
//	kirogw keys create --name ci
//	kirogw keys list
//	kirogw keys revoke 3
package main

func main() {
	Execute()
}
