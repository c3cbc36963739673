// Package errors provides structured error handling for the identity core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// Session errors
	CodeSessionExpired    Code = "SESSION_EXPIRED"
	CodeSessionTokenEmpty Code = "SESSION_TOKEN_EMPTY"

	// Passkey errors
	CodePasskeyChallengeExpired  Code = "PASSKEY_CHALLENGE_EXPIRED"
	CodePasskeyChallengeMismatch Code = "PASSKEY_CHALLENGE_MISMATCH"
	CodeDuplicateCredential      Code = "DUPLICATE_CREDENTIAL"
	CodePossibleClone            Code = "POSSIBLE_CLONE_DETECTED"

	// Biometric token errors
	CodeBiometricTokenExpired    Code = "BIOMETRIC_TOKEN_EXPIRED"
	CodeBiometricExpiryRequired  Code = "BIOMETRIC_EXPIRY_REQUIRED"
	CodeBiometricSessionRequired Code = "BIOMETRIC_SESSION_REQUIRED"

	// Tenant access errors
	CodeNotAMember       Code = "NOT_A_MEMBER"
	CodeInvalidRole      Code = "INVALID_TENANT_ROLE"
	CodeLocationMismatch Code = "LOCATION_MISMATCH"

	// Admission errors
	CodeAmbiguousAdmission    Code = "AMBIGUOUS_ADMISSION"
	CodeAdmissionGrantInvalid Code = "ADMISSION_GRANT_INVALID"
	CodeAdmissionGrantExpired Code = "ADMISSION_GRANT_EXPIRED"

	// Account errors
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeEmailTaken         Code = "EMAIL_TAKEN"
	CodeInvalidEmail       Code = "INVALID_EMAIL"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeSessionTokenEmpty,
		CodeBiometricExpiryRequired,
		CodeInvalidRole,
		CodeInvalidEmail,
		CodeAdmissionGrantInvalid:
		return codes.InvalidArgument

	// Unauthenticated - credential checks failed or lapsed
	case CodeSessionExpired,
		CodeBiometricTokenExpired,
		CodeBiometricSessionRequired,
		CodeInvalidCredentials,
		CodeAdmissionGrantExpired:
		return codes.Unauthenticated

	// PermissionDenied - identity established but access refused
	case CodeNotAMember,
		CodeLocationMismatch,
		CodePossibleClone:
		return codes.PermissionDenied

	// FailedPrecondition - state doesn't allow operation
	case CodePasskeyChallengeExpired,
		CodePasskeyChallengeMismatch,
		CodeAmbiguousAdmission:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodeDuplicateCredential,
		CodeEmailTaken:
		return codes.AlreadyExists

	// Aborted - concurrent-write race, caller may retry
	case CodeConflict:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
