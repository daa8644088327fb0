// Command gh-proxy runs a caching GitHub API proxy with webhook intake.
//
// Requests to /gh/* are forwarded to the GitHub API through the full
// client stack (auth, rate limiting, retries, circuit breaker, ETag
// cache), /webhook accepts signature-verified webhook deliveries, and
// /metrics exposes Prometheus metrics.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ghwire/ghwire/pkg/apierr"
	"github.com/ghwire/ghwire/pkg/githubapi"
	"github.com/ghwire/ghwire/pkg/logging"
	"github.com/ghwire/ghwire/pkg/webhook"
)

const maxWebhookBody = 5 << 20

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: os.Getenv("LOG_PRETTY") == "true",
		Output: os.Stderr,
	})

	port := getEnv("PORT", "8080")
	userAgent := getEnv("USER_AGENT", "gh-proxy/0.1.0")
	webhookSecret := os.Getenv("WEBHOOK_SECRET")

	config := githubapi.DefaultConfig(userAgent, os.Getenv("GITHUB_TOKEN"))
	if baseURL := os.Getenv("GITHUB_BASE_URL"); baseURL != "" {
		config.BaseURL = baseURL
	}

	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Str("addr", redisURL).Msg("Failed to connect to Redis")
		}
		config.Redis = redisClient
		logger.Info().Str("addr", redisURL).Msg("Response cache enabled")
	}

	client, err := githubapi.New(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create GitHub client")
	}

	verifier := webhook.NewVerifier(logging.NewLogger("webhook"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/gh/", proxyHandler(client))
	mux.HandleFunc("/webhook", webhookHandler(verifier, webhookSecret))

	server := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().Str("addr", server.Addr).Str("user_agent", userAgent).Msg("Starting gh-proxy")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// proxyHandler forwards GET requests under /gh/ to the GitHub API.
// Example: GET /gh/repos/octo/hello -> GET /repos/octo/hello.
func proxyHandler(client *githubapi.Client) http.HandlerFunc {
	logger := logging.NewLogger("proxy")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "only GET is proxied", http.StatusMethodNotAllowed)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/gh")
		if r.URL.RawQuery != "" {
			path += "?" + r.URL.RawQuery
		}

		ctx, cancel := context.WithTimeout(r.Context(), 60*time.Second)
		defer cancel()

		var payload json.RawMessage
		if err := client.Get(ctx, path, &payload); err != nil {
			status := http.StatusBadGateway
			var apiErr *apierr.Error
			if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
				status = apiErr.StatusCode
			}
			logger.Warn().Err(err).Str("path", path).Int("status", status).Msg("Proxy request failed")
			http.Error(w, err.Error(), status)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(payload)
	}
}

// webhookHandler verifies webhook deliveries. Valid deliveries are
// acknowledged with 204; mismatched signatures get 401 and malformed
// ones 400.
func webhookHandler(verifier *webhook.Verifier, secret string) http.HandlerFunc {
	logger := logging.NewLogger("webhook")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if secret == "" {
			http.Error(w, "webhook secret not configured", http.StatusServiceUnavailable)
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		valid, err := verifier.VerifyRequest(payload, r.Header, secret)
		if err != nil {
			logger.Warn().Err(err).Msg("Malformed webhook delivery")
			http.Error(w, "malformed signature", http.StatusBadRequest)
			return
		}
		if !valid {
			logger.Warn().
				Str("delivery", r.Header.Get(webhook.DeliveryHeader)).
				Msg("Webhook signature mismatch")
			http.Error(w, "signature mismatch", http.StatusUnauthorized)
			return
		}

		logger.Info().
			Str("event", r.Header.Get(webhook.EventHeader)).
			Str("delivery", r.Header.Get(webhook.DeliveryHeader)).
			Int("bytes", len(payload)).
			Msg("Webhook delivery accepted")
		w.WriteHeader(http.StatusNoContent)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
