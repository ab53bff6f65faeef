package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tom2984/aac-sub001/internal/app"
	"github.com/tom2984/aac-sub001/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	minSecretLength        = 32
	recommendedSecretBytes = 48
	maxRecommendedExpiry   = 7 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed outright.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// AuditService evaluates the deployment's security posture.
type AuditService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewAuditService constructs the audit service. A nil db or cfg degrades the
// dependent checks to warnings.
func NewAuditService(db *gorm.DB, cfg *app.Config) *AuditService {
	return &AuditService{
		db:  db,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the clock used in results (primarily for testing).
func (s *AuditService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (s *AuditService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkAdminPresent(ctx),
		s.checkJWTSecret(),
		s.checkEncryptionKey(),
		s.checkDispatchSecret(),
		s.checkTokenExpiry(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: s.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (s *AuditService) checkAdminPresent(ctx context.Context) Check {
	const id = "admin_present"
	if s.db == nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Database unavailable; unable to confirm an administrator exists",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("role = ? AND status = ?", models.RoleAdmin, models.ProfileActive).
		Count(&count).Error; err != nil {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not count administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active administrator profile found.",
			Remediation: "Promote an existing profile to admin so invites can be issued.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Active administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (s *AuditService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.cfg == nil {
		return missingConfig(id)
	}

	length := len(s.cfg.Auth.JWT.Secret)
	switch {
	case length == 0:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Missing JWT signing secret.",
			Remediation: "Provide a cryptographically secure signing secret (>= 32 bytes).",
		}
	case length < minSecretLength:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < recommendedSecretBytes:
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of FORMTRACK_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (s *AuditService) checkEncryptionKey() Check {
	const id = "integration_encryption_key"
	if s.cfg == nil {
		return missingConfig(id)
	}

	xeroEnabled := strings.TrimSpace(s.cfg.Integrations.Xero.ClientID) != ""
	key, err := s.cfg.Auth.EncryptionKeyBytes()
	switch {
	case err != nil:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("Encryption key is invalid: %v", err),
			Remediation: "Set FORMTRACK_AUTH_ENCRYPTION_KEY to 32 random bytes encoded as hex or base64.",
		}
	case key == nil && xeroEnabled:
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "Xero is configured but no encryption key is set; connections cannot be stored.",
			Remediation: "Set FORMTRACK_AUTH_ENCRYPTION_KEY to 32 random bytes encoded as hex or base64.",
		}
	case key == nil:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: "No integrations store credentials; encryption key not required.",
		}
	default:
		return Check{
			ID:      id,
			Status:  StatusPass,
			Message: "Encryption key configured.",
			Details: map[string]any{"xero_enabled": xeroEnabled},
		}
	}
}

func (s *AuditService) checkDispatchSecret() Check {
	const id = "dispatch_secret"
	if s.cfg == nil {
		return missingConfig(id)
	}

	if strings.TrimSpace(s.cfg.Dispatch.Secret) == "" {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Notification dispatch endpoint is callable without a shared secret.",
			Remediation: "Set FORMTRACK_DISPATCH_SECRET and send it from the scheduler as X-Dispatch-Secret.",
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: "Notification dispatch requires a shared secret.",
	}
}

func (s *AuditService) checkTokenExpiry() Check {
	const id = "token_expiry"
	if s.cfg == nil {
		return missingConfig(id)
	}

	expiry := s.cfg.Tokens.Expiry
	if expiry <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Invite and confirmation expiry is not configured; using default duration.",
			Remediation: "Set FORMTRACK_TOKENS_EXPIRY to control how long emailed links stay valid.",
		}
	}

	if expiry > maxRecommendedExpiry {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Emailed links stay valid for %s, longer than the recommended %s.", expiry, maxRecommendedExpiry),
			Remediation: "Reduce FORMTRACK_TOKENS_EXPIRY to 7 days or lower.",
			Details:     map[string]any{"expiry": expiry.String()},
		}
	}

	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Emailed links expire after %s.", expiry),
		Details: map[string]any{"expiry": expiry.String()},
	}
}

func missingConfig(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded; check skipped.",
		Remediation: "Load configuration before running the security audit.",
	}
}
