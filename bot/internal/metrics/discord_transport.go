package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/devilmonastery/arachnid/internal/pkg/metrics"
)

// routePatterns collapse ids in Discord REST paths so route labels stay low-cardinality
var routePatterns = []struct {
	regex   *regexp.Regexp
	replace string
}{
	{regexp.MustCompile(`/guilds/\d+`), "/guilds/:id"},
	{regexp.MustCompile(`/members/\d+`), "/members/:id"},
	{regexp.MustCompile(`/roles/\d+`), "/roles/:id"},
	{regexp.MustCompile(`/users/\d+`), "/users/:id"},
	{regexp.MustCompile(`/channels/\d+`), "/channels/:id"},
	{regexp.MustCompile(`/messages/\d+`), "/messages/:id"},
	{regexp.MustCompile(`/api/v\d+`), ""},
}

// discordMetricsTransport records every Discord REST call made by the session
type discordMetricsTransport struct {
	base http.RoundTripper
}

// NewDiscordMetricsTransport wraps base (http.DefaultTransport if nil).
// Install it as the discordgo session's Client.Transport.
func NewDiscordMetricsTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &discordMetricsTransport{base: base}
}

func (t *discordMetricsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !isDiscordAPIRequest(req) {
		return t.base.RoundTrip(req)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)

	route := normalizeDiscordRoute(req.URL.Path)
	bucket := route
	status := 0

	if resp != nil {
		status = resp.StatusCode
		if b := resp.Header.Get("X-RateLimit-Bucket"); b != "" {
			bucket = b
		}
		if remaining, convErr := strconv.Atoi(resp.Header.Get("X-RateLimit-Remaining")); convErr == nil {
			metrics.DiscordRateLimitRemaining.WithLabelValues(route, bucket).Set(float64(remaining))
		}
		if status == http.StatusTooManyRequests {
			metrics.DiscordRateLimitHits.WithLabelValues(route, bucket).Inc()
		}
	}

	metrics.DiscordAPICalls.WithLabelValues(req.Method, route, bucket, strconv.Itoa(status)).Inc()
	metrics.DiscordAPIDuration.WithLabelValues(req.Method, route, bucket).Observe(float64(elapsed.Milliseconds()))

	if err != nil || status >= 400 {
		metrics.DiscordAPIErrors.WithLabelValues(route, bucket, classifyDiscordError(status, err)).Inc()
	}

	return resp, err
}

func isDiscordAPIRequest(req *http.Request) bool {
	host := req.URL.Hostname()
	return host == "discord.com" || host == "discordapp.com" ||
		strings.HasSuffix(host, ".discord.com") || strings.HasSuffix(host, ".discordapp.com")
}

func normalizeDiscordRoute(path string) string {
	for _, p := range routePatterns {
		path = p.regex.ReplaceAllString(path, p.replace)
	}
	return path
}

func classifyDiscordError(status int, err error) string {
	if err != nil {
		var netErr net.Error
		switch {
		case errors.Is(err, context.Canceled):
			return "canceled"
		case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
			return "timeout"
		default:
			return "network"
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return "unauthorized"
	case status == http.StatusForbidden:
		return "forbidden"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	case status >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
