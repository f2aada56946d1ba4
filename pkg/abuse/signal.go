package abuse

import "strings"

// Signal is the verdict on a request's declared client software. It is
// logged for observability and never blocks the request; false positives
// must not deny legitimate users.
type Signal struct {
	Suspicious bool
	Reason     string // "missing", "allowlisted" or "matched"
	Matched    string // pattern name when Reason == "matched"
	UserAgent  string
}

// Known non-browser client signatures, checked in order.
var clientPatterns = []struct {
	name   string
	substr string
}{
	{"curl", "curl"},
	{"wget", "wget"},
	{"python-requests", "python-requests"},
	{"httpclient", "httpclient"},
	{"powershell", "powershell"},
	{"libwww", "libwww"},
}

// EvaluateUserAgent classifies a User-Agent string. Allowlist substrings
// (already lowercased) take priority over the suspicious patterns.
func EvaluateUserAgent(userAgent string, allowlist []string) Signal {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return Signal{Suspicious: true, Reason: "missing"}
	}
	for _, s := range allowlist {
		if s != "" && strings.Contains(ua, s) {
			return Signal{Reason: "allowlisted", UserAgent: ua}
		}
	}
	for _, p := range clientPatterns {
		if strings.Contains(ua, p.substr) {
			return Signal{Suspicious: true, Reason: "matched", Matched: p.name, UserAgent: ua}
		}
	}
	return Signal{UserAgent: ua}
}
