// Copyright 2026 The dreamscapes-sub008 Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package classify maps raw provider/transport failures onto a closed error
// taxonomy and a deterministic recovery strategy, so every other component
// reasons about one ClassifiedError shape instead of provider-specific
// error bags.
package classify

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Kind is the closed error taxonomy.
type Kind string

const (
	KindResponseParsing Kind = "response_parsing"
	KindProviderMethod  Kind = "provider_method"
	KindNetwork         Kind = "network"
	KindTimeout         Kind = "timeout"
	KindRateLimit       Kind = "rate_limit"
	KindAuthentication  Kind = "authentication"
	KindProviderError   Kind = "provider_error"
	KindConfiguration   Kind = "configuration"
	KindValidation      Kind = "validation"
	KindUnknown         Kind = "unknown"
)

// Severity orders recovery priority; Priority() turns it into the numeric
// ranking used to order recovery plans across concurrently failing providers.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Priority returns the recovery-plan ordering numeric: critical=1 ... low=4.
func (s Severity) Priority() int {
	switch s {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	default:
		return 4
	}
}

// ActionKind names one recovery action.
type ActionKind string

const (
	ActionEnhanceParsing        ActionKind = "enhance_parsing"
	ActionSwitchProvider        ActionKind = "switch_provider"
	ActionImplementMethod       ActionKind = "implement_method"
	ActionExponentialBackoff    ActionKind = "exponential_backoff_retry"
	ActionRateLimitBackoff      ActionKind = "rate_limit_backoff"
	ActionRefreshCredentials    ActionKind = "refresh_credentials"
	ActionRetryWithBackoff      ActionKind = "retry_with_backoff"
	ActionValidateConfig        ActionKind = "validate_config"
)

// RecoveryAction is one step of a recovery strategy.
type RecoveryAction struct {
	Kind        ActionKind
	TimeoutMs   int64
	MaxAttempts int
}

// RecoveryStrategy is the ordered plan attached to a ClassifiedError.
type RecoveryStrategy struct {
	Actions         []RecoveryAction
	Priority        int
	FallbackOptions []string
}

// Context carries the documented, non-sensitive call context used to
// classify an error. Sensitive keys are never placed here by callers;
// Sanitize additionally guards against accidental inclusion.
type Context struct {
	Provider            string
	Operation           string
	AttemptNumber       int
	ConsecutiveFailures int
	AllProvidersFailed  bool
	ResponseTimeMs      int64
	ResponseHeaders     map[string]string
	ResponseData        string
	StatusCode          int
}

var sensitiveKeys = []string{"apikey", "api_key", "credentials", "authorization"}

const maxResponseDataBytes = 1024

// Sanitize strips sensitive-looking keys from response headers and truncates
// an oversized response body before the context is ever logged or classified
// further, per the redaction-by-construction rule.
func (c Context) Sanitize() Context {
	clean := c
	if len(c.ResponseHeaders) > 0 {
		clean.ResponseHeaders = make(map[string]string, len(c.ResponseHeaders))
		for k, v := range c.ResponseHeaders {
			if isSensitiveKey(k) {
				continue
			}
			clean.ResponseHeaders[k] = v
		}
	}
	if len(clean.ResponseData) > maxResponseDataBytes {
		clean.ResponseData = clean.ResponseData[:maxResponseDataBytes] + "...[truncated]"
	}
	return clean
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ClassifiedError is the closed, documented shape every other component
// reasons about instead of a raw error.
type ClassifiedError struct {
	Type             Kind
	Severity         Severity
	Retryable        bool
	Recoverable      bool
	RecoveryStrategy RecoveryStrategy
	Context          Context
	Message          string
}

func (e *ClassifiedError) Error() string {
	return string(e.Type) + ": " + e.Message
}

// Config holds the tunable thresholds referenced by the classification and
// escalation rules.
type Config struct {
	MaxRetryAttempts           int
	ConsecutiveFailureCritical int
	ConsecutiveFailureHigh     int
	BackoffBaseMs              int64
	BackoffFactor              float64
	BackoffCapMs               int64
	DefaultRateLimitSeconds    int64
}

// DefaultConfig mirrors the defaults named in the classification rules.
func DefaultConfig() Config {
	return Config{
		MaxRetryAttempts:           3,
		ConsecutiveFailureCritical: 5,
		ConsecutiveFailureHigh:     3,
		BackoffBaseMs:              1000,
		BackoffFactor:              2,
		BackoffCapMs:               30000,
		DefaultRateLimitSeconds:    60,
	}
}

// OnClassified is invoked with every classified error, letting a caller
// feed the errors/summary surface without this package depending on it.
type OnClassified func(ce *ClassifiedError)

// Classifier applies the ordered rule table to raw errors. Its config may
// be swapped at runtime via SetConfig (hot reload), so reads go through a
// lock-guarded snapshot.
type Classifier struct {
	mu           sync.RWMutex
	cfg          Config
	onClassified OnClassified
}

// New constructs a Classifier with the given configuration. onClassified
// may be nil.
func New(cfg Config, onClassified OnClassified) *Classifier {
	return &Classifier{cfg: cfg, onClassified: onClassified}
}

var (
	reResponseParsing = regexp.MustCompile(`(?i)substring is not a function|cannot read propert(y|ies) of (undefined|null)|unexpected token .* in json|json syntax error`)
	reProviderMethod  = regexp.MustCompile(`(?i)is not a function`)
	reNetwork         = regexp.MustCompile(`(?i)econnrefused|enotfound|econnreset|etimedout|network|connection failed`)
	reTimeout         = regexp.MustCompile(`(?i)\btimeout\b|context deadline exceeded`)
	reRateLimit       = regexp.MustCompile(`(?i)rate limit|quota exceeded`)
	reAuth            = regexp.MustCompile(`(?i)unauthorized|invalid api key`)
	reConfiguration   = regexp.MustCompile(`(?i)(missing|invalid).*(config|api key)`)
	reCircuitOpen     = regexp.MustCompile(`(?i)circuit (breaker is )?open`)
)

// Classify turns a raw error plus call context into a ClassifiedError,
// applying the ordered rule table, severity escalation, and retryability
// override documented for this component.
func (c *Classifier) Classify(err error, ctx Context) *ClassifiedError {
	cfg := c.ConfigSnapshot()
	ctx = ctx.Sanitize()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	ce := baseClassify(msg, ctx, cfg)
	escalateSeverity(ce, ctx, cfg)
	applyRetryabilityOverride(ce, ctx, cfg)
	ce.RecoveryStrategy.Priority = ce.Severity.Priority()
	if c.onClassified != nil {
		c.onClassified(ce)
	}
	return ce
}

func baseClassify(msg string, ctx Context, cfg Config) *ClassifiedError {
	switch {
	case reResponseParsing.MatchString(msg):
		return &ClassifiedError{
			Type: KindResponseParsing, Severity: SeverityHigh, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{
				{Kind: ActionEnhanceParsing}, {Kind: ActionSwitchProvider},
			}},
		}
	case reProviderMethod.MatchString(msg) && looksLikeProviderMethod(msg):
		return &ClassifiedError{
			Type: KindProviderMethod, Severity: SeverityCritical, Retryable: false, Recoverable: false,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{{Kind: ActionImplementMethod}}},
		}
	case reNetwork.MatchString(msg):
		return &ClassifiedError{
			Type: KindNetwork, Severity: SeverityMedium, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{
				{Kind: ActionExponentialBackoff, TimeoutMs: backoffMs(cfg, ctx.AttemptNumber)},
			}},
		}
	case reTimeout.MatchString(msg):
		return &ClassifiedError{
			Type: KindTimeout, Severity: SeverityMedium, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{
				{Kind: ActionExponentialBackoff, TimeoutMs: backoffMs(cfg, ctx.AttemptNumber)},
			}},
		}
	case ctx.StatusCode == 429 || reRateLimit.MatchString(msg):
		retryAfter := rateLimitTimeoutMs(ctx, cfg)
		return &ClassifiedError{
			Type: KindRateLimit, Severity: SeverityMedium, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{
				{Kind: ActionRateLimitBackoff, TimeoutMs: retryAfter},
			}},
		}
	case ctx.StatusCode == 401 || ctx.StatusCode == 403 || reAuth.MatchString(msg):
		return &ClassifiedError{
			Type: KindAuthentication, Severity: SeverityHigh, Retryable: false, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{{Kind: ActionRefreshCredentials}}},
		}
	case reCircuitOpen.MatchString(msg):
		return &ClassifiedError{
			Type: KindProviderError, Severity: SeverityHigh, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{{Kind: ActionSwitchProvider}}},
		}
	case ctx.StatusCode >= 500 && ctx.StatusCode < 600:
		sev := SeverityMedium
		if ctx.ResponseTimeMs > 10000 {
			sev = SeverityHigh
		}
		return &ClassifiedError{
			Type: KindProviderError, Severity: sev, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{
				{Kind: ActionSwitchProvider}, {Kind: ActionRetryWithBackoff, TimeoutMs: backoffMs(cfg, ctx.AttemptNumber)},
			}},
		}
	case reConfiguration.MatchString(msg):
		return &ClassifiedError{
			Type: KindConfiguration, Severity: SeverityCritical, Retryable: false, Recoverable: false,
			Message: msg, Context: ctx,
			RecoveryStrategy: RecoveryStrategy{Actions: []RecoveryAction{{Kind: ActionValidateConfig}}},
		}
	case ctx.StatusCode == 400:
		return &ClassifiedError{
			Type: KindValidation, Severity: SeverityLow, Retryable: false, Recoverable: false,
			Message: msg, Context: ctx,
		}
	default:
		return &ClassifiedError{
			Type: KindUnknown, Severity: SeverityLow, Retryable: true, Recoverable: true,
			Message: msg, Context: ctx,
		}
	}
}

// looksLikeProviderMethod narrows the generic "is not a function" match to
// calls against a provider/manager method, so it doesn't shadow the more
// specific response_parsing rule evaluated first.
func looksLikeProviderMethod(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "provider") || strings.Contains(lower, "manager")
}

func escalateSeverity(ce *ClassifiedError, ctx Context, cfg Config) {
	if ctx.AllProvidersFailed || ctx.ConsecutiveFailures >= cfg.ConsecutiveFailureCritical {
		ce.Severity = SeverityCritical
		return
	}
	if ctx.ConsecutiveFailures >= cfg.ConsecutiveFailureHigh && ce.Severity != SeverityCritical {
		ce.Severity = SeverityHigh
	}
}

func applyRetryabilityOverride(ce *ClassifiedError, ctx Context, cfg Config) {
	switch ce.Type {
	case KindConfiguration, KindAuthentication, KindValidation, KindProviderMethod:
		ce.Retryable = false
		return
	}
	if ctx.AttemptNumber > cfg.MaxRetryAttempts {
		ce.Retryable = false
	}
}

// MarkAllProvidersFailed escalates an already-classified error to critical
// once the fallback chain has exhausted every provider; the caller invokes
// it at most once, on the final error of a request.
func (c *Classifier) MarkAllProvidersFailed(ce *ClassifiedError) {
	ce.Context.AllProvidersFailed = true
	ce.Severity = SeverityCritical
	ce.RecoveryStrategy.Priority = ce.Severity.Priority()
}

// ConfigSnapshot returns the classifier's current configuration, so callers
// driving their own retry loop can compute backoff with the same parameters
// used during classification.
func (c *Classifier) ConfigSnapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// SetConfig replaces the classifier's thresholds in place; classifications
// already in flight finish against the snapshot they started with.
func (c *Classifier) SetConfig(cfg Config) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Backoff computes the pure exponential backoff delay for a given attempt
// number; same input always yields the same output, by construction.
func Backoff(cfg Config, attempt int) time.Duration {
	return time.Duration(backoffMs(cfg, attempt)) * time.Millisecond
}

func backoffMs(cfg Config, attempt int) int64 {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(cfg.BackoffBaseMs)
	for i := 1; i < attempt; i++ {
		base *= cfg.BackoffFactor
		if int64(base) >= cfg.BackoffCapMs {
			return cfg.BackoffCapMs
		}
	}
	if int64(base) > cfg.BackoffCapMs {
		return cfg.BackoffCapMs
	}
	return int64(base)
}

// rateLimitTimeoutMs reads Retry-After or X-RateLimit-Reset (seconds) from
// the sanitized response headers, falling back to the configured default.
func rateLimitTimeoutMs(ctx Context, cfg Config) int64 {
	for _, header := range []string{"Retry-After", "retry-after", "X-RateLimit-Reset", "x-ratelimit-reset"} {
		if v, ok := ctx.ResponseHeaders[header]; ok {
			if secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && secs > 0 {
				return secs * 1000
			}
		}
	}
	return cfg.DefaultRateLimitSeconds * 1000
}
