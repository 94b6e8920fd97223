// auctiond serves a sealed-bid auction house over vsock. Bids arrive as
// ciphertext envelopes; only a settled auction's winning amount is ever
// decrypted.
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Helper function for required environment variable parsing
func getRequiredEnvInt(key string) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return 0, fmt.Errorf("required environment variable %s is not set", key)
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %s (must be a valid integer)", key, value)
	}

	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue, nil
}

// getEnvIntDefault reads an optional integer environment variable.
func getEnvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("WARNING: Invalid value for %s: %s, using default %d", key, value, fallback)
		return fallback
	}
	log.Printf("INFO: Using %s=%d from environment", key, intValue)
	return intValue
}

func main() {
	port := getEnvIntDefault("AUCTIOND_PORT", 5000)
	// Reveal latency models the external decryption rounds of the engine.
	// 0 makes every reveal ready on its first poll.
	revealLatency := getEnvIntDefault("AUCTIOND_REVEAL_LATENCY", 0)

	server, err := NewAuctionServer(uint32(port), revealLatency)
	if err != nil {
		log.Fatalf("ERROR: Failed to initialize auctiond: %v", err)
	}
	log.Fatal(server.Start())
}
