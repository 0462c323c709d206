package botcha

// Kind classifies why a verification operation failed. Every structured
// result returned by the engine carries one so callers can decide how to
// present the failure.
type Kind string

const (
	KindNone Kind = ""

	// challenge lifecycle
	KindChallengeNotFoundOrExpired Kind = "ChallengeNotFoundOrExpired"
	KindAnswerCountMismatch        Kind = "AnswerCountMismatch"
	KindAnswerMismatch             Kind = "AnswerMismatch"
	KindTooSlow                    Kind = "TooSlow"

	// bearer credentials
	KindCredentialMalformed    Kind = "CredentialMalformed"
	KindCredentialExpired      Kind = "CredentialExpired"
	KindCredentialTypeMismatch Kind = "CredentialTypeMismatch"
	KindCredentialRevoked      Kind = "CredentialRevoked"
	KindRevocationCheckFailed  Kind = "RevocationCheckFailed"
	KindAudienceMismatch       Kind = "AudienceMismatch"
	KindClientIPMismatch       Kind = "ClientIpMismatch"

	// Web Bot Auth
	KindSignatureHeadersMissing Kind = "SignatureHeadersMissing"
	KindUntrustedProvider       Kind = "UntrustedProvider"
	KindDirectoryUnavailable    Kind = "DirectoryUnavailable"
	KindSigningKeyNotFound      Kind = "SigningKeyNotFound"
	KindSignatureMismatch       Kind = "SignatureMismatch"

	// badges
	KindBadgeTokenInvalid Kind = "BadgeTokenInvalid"
)

// Kinds lists every failure kind, in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindChallengeNotFoundOrExpired,
		KindAnswerCountMismatch,
		KindAnswerMismatch,
		KindTooSlow,
		KindCredentialMalformed,
		KindCredentialExpired,
		KindCredentialTypeMismatch,
		KindCredentialRevoked,
		KindRevocationCheckFailed,
		KindAudienceMismatch,
		KindClientIPMismatch,
		KindSignatureHeadersMissing,
		KindUntrustedProvider,
		KindDirectoryUnavailable,
		KindSigningKeyNotFound,
		KindSignatureMismatch,
		KindBadgeTokenInvalid,
	}
}

func (k Kind) String() string { return string(k) }
