package vault

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const retryMarker = "_retry_"

// ApprovalPrefix is the reserved artifact name prefix that marks a
// cross-role approval handoff item.
const ApprovalPrefix = "SEND_APPROVAL_"

// RetryCount extracts the retry count encoded in an artifact name.
// "T2_retry_2.md" → 2; names without a suffix → 0.
func RetryCount(name string) int {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(stem, retryMarker)
	if idx < 0 {
		return 0
	}
	n, err := strconv.Atoi(stem[idx+len(retryMarker):])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// BaseName strips any retry suffix, preserving the extension.
// "T2_retry_2.md" → "T2.md".
func BaseName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	idx := strings.LastIndex(stem, retryMarker)
	if idx >= 0 {
		if _, err := strconv.Atoi(stem[idx+len(retryMarker):]); err == nil {
			stem = stem[:idx]
		}
	}
	return stem + ext
}

// WithRetry returns the name re-serialized with the given retry count.
// The suffix is always singular: an existing suffix is replaced, never
// stacked.
func WithRetry(name string, count int) string {
	base := BaseName(name)
	if count <= 0 {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s%s%d%s", stem, retryMarker, count, ext)
}

// IsApproval reports whether the artifact name carries the reserved
// handoff prefix.
func IsApproval(name string) bool {
	return strings.HasPrefix(name, ApprovalPrefix)
}
