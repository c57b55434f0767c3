// Package errs implements the platform's unified error taxonomy: one
// tagged error kind per failure mode, each mapped to an HTTP status, a
// severity for logging, and a public message safe to hand back to a
// client. Nothing downstream should construct a bare fmt.Errorf for a
// condition that has a Kind here.
package errs

import (
	"errors"
	"fmt"
)

// Kind identifies a failure mode. The zero value is never used.
type Kind int

const (
	_ Kind = iota

	// Auth
	KindInvalidToken
	KindInvalidCredentials
	KindTwoFactorRequired
	KindTwoFactorInvalid

	// Authorization
	KindUnauthorized
	KindInsufficientPermissions
	KindAccountSuspended
	KindIPBlocked

	// Validation
	KindInvalidFormat
	KindMissingParameter
	KindOutOfRange
	KindMessageTooLong
	KindUnsupportedFileType
	KindFileTooLarge

	// Content
	KindInappropriateContent
	KindSpamDetected
	KindMaliciousFile

	// Rate
	KindRateLimitExceeded
	KindQuotaExceeded
	KindTooManyConnections

	// Conversation
	KindConversationNotFound
	KindNotMember
	KindConversationArchived
	KindMessageNotFound
	KindEditForbidden
	KindReactionAlreadyExists
	KindReactionNotFound

	// Network
	KindWebSocket
	KindConnectionClosed
	KindConnectionTimeout
	KindNetworkError

	// Persistence
	KindDatabase
	KindTransactionFailed
	KindCache
	KindConflict
	KindNotFound

	// System
	KindConfiguration
	KindServiceUnavailable
	KindShutdownTimeout
	KindInternal

	// Security
	KindSuspiciousActivity
	KindInjectionAttempt
	KindSecurityValidationFailed

	// Stream
	KindBufferNotFound
	KindBufferFull
	KindInvalidPlaybackState
	KindPlayerNotFound
	KindTooManyActivePlayers
	KindNoSyncPoint
	KindTimeSync
	KindParameterMismatch
	KindInvalidBitrate
	KindInvalidSampleRate
	KindInvalidChannelCount
	KindUploadSessionNotFound
	KindInvalidUploadState
)

// Severity drives log level and alerting, not client-visible behavior.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	case SeverityLow:
		return "low"
	default:
		return "info"
	}
}

// Error is the platform's single tagged error type. Fields beyond Kind
// are free-form detail used to build the public message; internal
// detail (e.g. a wrapped database driver error) lives in Wrapped and is
// never surfaced by Public().
type Error struct {
	Kind    Kind
	Detail  map[string]any
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Kind.String(), e.Wrapped)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New builds an Error with the given detail fields (key/value pairs,
// keys must be strings).
func New(kind Kind, kv ...any) *Error {
	d := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); ok {
			d[k] = kv[i+1]
		}
	}
	return &Error{Kind: kind, Detail: d}
}

// Wrap attaches an internal error (e.g. a pgx or redis error) that is
// logged but never exposed via Public().
func Wrap(kind Kind, err error, kv ...any) *Error {
	e := New(kind, kv...)
	e.Wrapped = err
	return e
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var kindNames = map[Kind]string{
	KindInvalidToken:             "invalid_token",
	KindInvalidCredentials:       "invalid_credentials",
	KindTwoFactorRequired:        "two_factor_required",
	KindTwoFactorInvalid:         "two_factor_invalid",
	KindUnauthorized:             "unauthorized",
	KindInsufficientPermissions:  "insufficient_permissions",
	KindAccountSuspended:         "account_suspended",
	KindIPBlocked:                "ip_blocked",
	KindInvalidFormat:            "invalid_format",
	KindMissingParameter:         "missing_parameter",
	KindOutOfRange:               "out_of_range",
	KindMessageTooLong:           "message_too_long",
	KindUnsupportedFileType:      "unsupported_file_type",
	KindFileTooLarge:             "file_too_large",
	KindInappropriateContent:     "inappropriate_content",
	KindSpamDetected:             "spam_detected",
	KindMaliciousFile:            "malicious_file",
	KindRateLimitExceeded:        "rate_limit_exceeded",
	KindQuotaExceeded:            "quota_exceeded",
	KindTooManyConnections:       "too_many_connections",
	KindConversationNotFound:     "conversation_not_found",
	KindNotMember:                "not_member",
	KindConversationArchived:     "conversation_archived",
	KindMessageNotFound:          "message_not_found",
	KindEditForbidden:            "edit_forbidden",
	KindReactionAlreadyExists:    "reaction_already_exists",
	KindReactionNotFound:         "reaction_not_found",
	KindWebSocket:                "websocket",
	KindConnectionClosed:         "connection_closed",
	KindConnectionTimeout:        "connection_timeout",
	KindNetworkError:             "network_error",
	KindDatabase:                 "database",
	KindTransactionFailed:        "transaction_failed",
	KindCache:                    "cache",
	KindConflict:                 "conflict",
	KindNotFound:                 "not_found",
	KindConfiguration:            "configuration",
	KindServiceUnavailable:       "service_unavailable",
	KindShutdownTimeout:          "shutdown_timeout",
	KindInternal:                 "internal",
	KindSuspiciousActivity:       "suspicious_activity",
	KindInjectionAttempt:         "injection_attempt",
	KindSecurityValidationFailed: "security_validation_failed",
	KindBufferNotFound:           "buffer_not_found",
	KindBufferFull:               "buffer_full",
	KindInvalidPlaybackState:     "invalid_playback_state",
	KindPlayerNotFound:           "player_not_found",
	KindTooManyActivePlayers:     "too_many_active_players",
	KindNoSyncPoint:              "no_sync_point",
	KindTimeSync:                 "time_sync",
	KindParameterMismatch:        "parameter_mismatch",
	KindInvalidBitrate:           "invalid_bitrate",
	KindInvalidSampleRate:        "invalid_sample_rate",
	KindInvalidChannelCount:      "invalid_channel_count",
	KindUploadSessionNotFound:    "upload_session_not_found",
	KindInvalidUploadState:       "invalid_upload_state",
}

// HTTPStatus maps a Kind to the status code specified in spec.md §4.L.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidFormat, KindMissingParameter, KindOutOfRange, KindMessageTooLong,
		KindUnsupportedFileType, KindFileTooLarge:
		return 400
	case KindInvalidToken, KindInvalidCredentials, KindTwoFactorRequired, KindTwoFactorInvalid:
		return 401
	case KindUnauthorized, KindInsufficientPermissions, KindAccountSuspended, KindIPBlocked,
		KindNotMember, KindEditForbidden:
		return 403
	case KindConversationNotFound, KindMessageNotFound, KindNotFound,
		KindBufferNotFound, KindPlayerNotFound, KindUploadSessionNotFound:
		return 404
	case KindConflict, KindReactionAlreadyExists:
		return 409
	case KindInappropriateContent, KindSpamDetected, KindMaliciousFile:
		return 422
	case KindRateLimitExceeded, KindQuotaExceeded, KindTooManyConnections, KindTooManyActivePlayers:
		return 429
	case KindDatabase, KindInternal, KindConfiguration, KindTransactionFailed, KindCache,
		KindBufferFull, KindInvalidPlaybackState, KindNoSyncPoint, KindTimeSync,
		KindParameterMismatch, KindInvalidBitrate, KindInvalidSampleRate,
		KindInvalidChannelCount, KindInvalidUploadState:
		return 500
	case KindServiceUnavailable, KindShutdownTimeout:
		return 503
	case KindInjectionAttempt:
		return 418
	case KindConversationArchived, KindReactionNotFound, KindWebSocket,
		KindConnectionClosed, KindConnectionTimeout, KindNetworkError,
		KindSuspiciousActivity, KindSecurityValidationFailed:
		return 409
	default:
		return 500
	}
}

// Severity maps a Kind to the logging severity specified in spec.md §4.L.
func (k Kind) Severity() Severity {
	switch k {
	case KindDatabase, KindServiceUnavailable, KindShutdownTimeout, KindSuspiciousActivity,
		KindInjectionAttempt, KindIPBlocked:
		return SeverityHigh
	case KindInvalidToken, KindInvalidCredentials, KindTwoFactorRequired, KindTwoFactorInvalid,
		KindInappropriateContent, KindSpamDetected, KindMaliciousFile,
		KindConversationNotFound, KindMessageNotFound, KindEditForbidden, KindConflict,
		KindUnauthorized, KindInsufficientPermissions, KindAccountSuspended:
		return SeverityMedium
	case KindRateLimitExceeded, KindQuotaExceeded, KindTooManyConnections, KindNotFound:
		return SeverityLow
	default:
		return SeverityInfo
	}
}

// Public renders a safe, client-facing message. 5xx classes never leak
// internal detail; validation classes render the detail fields.
func (k Kind) Public(detail map[string]any) string {
	switch k {
	case KindInvalidFormat:
		return fmt.Sprintf("Format invalide pour %v.", detail["field"])
	case KindMissingParameter:
		return fmt.Sprintf("Paramètre requis manquant: %v.", detail["param"])
	case KindOutOfRange:
		return fmt.Sprintf("%v hors limites (min: %v, max: %v).", detail["field"], detail["min"], detail["max"])
	case KindMessageTooLong:
		return fmt.Sprintf("Message trop long: %v caractères (max: %v).", detail["actual"], detail["max"])
	case KindRateLimitExceeded:
		return fmt.Sprintf("Trop de requêtes pour %v, veuillez patienter %vs.", detail["action"], detail["window"])
	case KindQuotaExceeded:
		return fmt.Sprintf("Quota %v dépassé.", detail["quota_type"])
	case KindInappropriateContent:
		return "Contenu inapproprié détecté."
	case KindSpamDetected:
		return "Message identifié comme spam."
	case KindConversationNotFound:
		return "Conversation inexistante."
	case KindMessageNotFound:
		return "Message introuvable."
	case KindEditForbidden:
		return "Modification non autorisée."
	case KindReactionAlreadyExists:
		return "Réaction déjà enregistrée."
	case KindUnauthorized, KindInsufficientPermissions:
		return "Action non autorisée."
	case KindAccountSuspended:
		return "Compte suspendu."
	case KindInvalidCredentials, KindInvalidToken:
		return "Identifiants invalides."
	case KindSuspiciousActivity, KindIPBlocked:
		return "Activité inhabituelle détectée."
	case KindInjectionAttempt:
		return "Requête rejetée."
	case KindServiceUnavailable:
		return "Service temporairement indisponible."
	case KindDatabase, KindInternal, KindConfiguration, KindTransactionFailed, KindCache:
		return "Une erreur interne est survenue."
	default:
		return "Une erreur est survenue."
	}
}

// Public is a convenience over Kind.Public using the Error's own detail.
func (e *Error) Public() string { return e.Kind.Public(e.Detail) }
