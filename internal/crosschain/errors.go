package crosschain

import (
	xerrors "MindPress-Market/internal/errors"
)

const (
	CodeInvalidQuote       xerrors.Code = "INVALID_QUOTE"
	CodeUnsupportedAction  xerrors.Code = "UNSUPPORTED_ACTION"
	CodeEncodingError      xerrors.Code = "ENCODING_ERROR"
	CodeEmptyBatch         xerrors.Code = "EMPTY_BATCH"
	CodeSubmissionRejected xerrors.Code = "SUBMISSION_REJECTED"
	CodeSubmissionTimeout  xerrors.Code = "SUBMISSION_TIMEOUT"
	CodeNetworkUnavailable xerrors.Code = "NETWORK_UNAVAILABLE"
)

// Metadata keys attached to submission errors.
const (
	MetaTarget        = "target"
	MetaPayloadDigest = "payload_digest"
	MetaRevertReason  = "revert_reason"
	MetaTxHash        = "tx_hash"
	MetaStrategy      = "strategy"
	MetaCallIndex     = "call_index"
	MetaMethod        = "method"
)

func init() {
	// Local validation failures point at a caller bug: never retried.
	for _, code := range []xerrors.Code{CodeInvalidQuote, CodeUnsupportedAction, CodeEncodingError, CodeEmptyBatch} {
		xerrors.Register(code, xerrors.Attributes{
			Message:   localMessages[code],
			Severity:  xerrors.SeverityInfo,
			Retryable: false,
			Alert:     false,
		})
	}
	xerrors.Register(CodeSubmissionRejected, xerrors.Attributes{
		Message:   "submission rejected",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeNetworkUnavailable, xerrors.Attributes{
		Message:   "network unavailable",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	// The transaction may still be mined after the wait gives up, so a blind
	// retry could submit twice.
	xerrors.Register(CodeSubmissionTimeout, xerrors.Attributes{
		Message:   "confirmation wait exceeded",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

var localMessages = map[xerrors.Code]string{
	CodeInvalidQuote:      "invalid fee quote",
	CodeUnsupportedAction: "unsupported action",
	CodeEncodingError:     "encoding error",
	CodeEmptyBatch:        "empty batch",
}

// IsValidationError reports whether err is one of the local validation
// failures that must surface immediately.
func IsValidationError(err error) bool {
	switch xerrors.CodeOf(err) {
	case CodeInvalidQuote, CodeUnsupportedAction, CodeEncodingError, CodeEmptyBatch:
		return true
	default:
		return false
	}
}
