package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Gateway security events.
const (
	EventLogin      = "auth.login"
	EventLogout     = "auth.logout"
	EventAuthorize  = "auth.authorize"
	EventSuperAdmin = "auth.superadmin.authorize"
	EventAdminWrite = "admin.write"

	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
)

// Rule is a failure threshold within a sliding bucket.
type Rule struct {
	Threshold int64
	Window    time.Duration
}

var failureRules = map[string]Rule{
	EventLogin:      {Threshold: 10, Window: 5 * time.Minute},
	EventLogout:     {Threshold: 15, Window: 5 * time.Minute},
	EventAuthorize:  {Threshold: 25, Window: 5 * time.Minute},
	EventSuperAdmin: {Threshold: 5, Window: 5 * time.Minute},
	EventAdminWrite: {Threshold: 15, Window: 5 * time.Minute},
}

var rateLimitedRule = Rule{Threshold: 20, Window: time.Minute}

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter counts security events per client IP and reports when a
// threshold is reached. A nil alerter observes nothing.
type AuditAlerter struct {
	redisClient *redis.Client
	prefix      string
}

// NewAuditAlerter creates an alerter backed by Redis counters. It returns nil
// when addr is empty.
func NewAuditAlerter(addr, password, prefix string) *AuditAlerter {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "llmgateway:alerts"
	}
	return &AuditAlerter{
		redisClient: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		prefix: prefix,
	}
}

// Observe records a security event and returns whether its threshold is reached.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil || a.redisClient == nil {
		return result, nil
	}
	rule, ok := ruleFor(event, outcome)
	if !ok {
		return result, nil
	}
	windowMs := rule.Window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.redisClient, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = rule.Threshold
	result.Window = rule.Window
	result.Triggered = count >= rule.Threshold
	return result, nil
}

func ruleFor(event, outcome string) (Rule, bool) {
	switch strings.TrimSpace(outcome) {
	case OutcomeRateLimited:
		return rateLimitedRule, true
	case OutcomeFail:
		rule, ok := failureRules[strings.TrimSpace(event)]
		return rule, ok
	default:
		return Rule{}, false
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}
