package canister

import (
	"strings"

	"github.com/icarus-mcp/icarus/internal/icaruserr"
)

// transportUnreachable wraps a low-level transport failure (connection
// reset, DNS failure, non-200 gateway status) as the Retryable
// Transport.Unreachable tag. The client itself never retries; it only
// classifies and surfaces, and the bridge decides what happens next.
func transportUnreachable(cause error) *icaruserr.Error {
	return icaruserr.Wrap(icaruserr.KindTransport, icaruserr.TagTransportUnreachable, icaruserr.SeverityRetryable, "transport-level failure", cause)
}

// internalDecode wraps a wire-bytes-don't-match-declared-shape failure as
// Internal.Decode, Fatal only for the call in question.
func internalDecode(cause error) *icaruserr.Error {
	return icaruserr.Wrap(icaruserr.KindInternal, icaruserr.TagInternalDecode, icaruserr.SeverityFatal, "wire-level decode failure", cause)
}

// rejectToError classifies a gateway "rejected" reply. A CanisterError
// reject whose message names a missing method surfaces as
// Canister.NotFound so the bridge can apply its refresh-once policy; any
// other canister-side rejection is a User-visible Canister.UserError
// carrying the canister's own message verbatim.
func rejectToError(rep replyEnvelope) *icaruserr.Error {
	if rep.RejectCode == rejectCanisterError && looksLikeMethodNotFound(rep.RejectMsg) {
		return icaruserr.New(icaruserr.KindTransport, icaruserr.TagCanisterNotFound, icaruserr.SeverityRetryable, rep.RejectMsg).
			WithContext("reject_code", rep.RejectCode)
	}
	return icaruserr.New(icaruserr.KindInternal, icaruserr.TagCanisterUserError, icaruserr.SeverityUser, rep.RejectMsg).
		WithContext("reject_code", rep.RejectCode)
}

func looksLikeMethodNotFound(msg string) bool {
	lower := strings.ToLower(msg)
	for _, phrase := range []string{
		"has no query method",
		"has no update method",
		"method not found",
		"method does not exist",
	} {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
