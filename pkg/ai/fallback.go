package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"smartshop-backend/pkg/logger"
)

// NamedGenerator pairs a provider with the name used in logs.
type NamedGenerator struct {
	Name string
	Gen  Generator
}

// FallbackService tries each provider in order and returns the first success.
// Quota and connection errors are logged as such so operators can tell a
// rate-limited key from a down local model.
type FallbackService struct {
	providers []NamedGenerator
}

// NewFallbackService creates a fallback chain. Nil generators are skipped.
func NewFallbackService(providers ...NamedGenerator) *FallbackService {
	f := &FallbackService{}
	for _, p := range providers {
		if p.Gen != nil {
			f.providers = append(f.providers, p)
		}
	}
	return f
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"dial tcp",
		"eof",
	}
	for _, indicator := range connectionIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource_exhausted",
		"resource exhausted",
	}
	for _, indicator := range quotaIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func (f *FallbackService) Generate(ctx context.Context, prompt string) (string, error) {
	log := logger.Component("ai")
	if len(f.providers) == 0 {
		return "", fmt.Errorf("no AI provider available")
	}

	var lastErr error
	for i, p := range f.providers {
		out, err := p.Gen.Generate(ctx, prompt)
		if err == nil {
			if i > 0 {
				log.Debug().Str("provider", p.Name).Msg("fallback provider succeeded")
			}
			return out, nil
		}
		lastErr = fmt.Errorf("%s: %w", p.Name, err)

		// The caller's deadline is shared by all providers; stop once it is gone.
		if ctx.Err() != nil {
			return "", lastErr
		}

		switch {
		case isQuotaError(err):
			log.Warn().Err(err).Str("provider", p.Name).Msg("quota exhausted, trying next provider")
		case isConnectionError(err):
			log.Warn().Err(err).Str("provider", p.Name).Msg("connection failed, trying next provider")
		default:
			log.Warn().Err(err).Str("provider", p.Name).Msg("provider error, trying next provider")
		}
	}
	return "", lastErr
}
