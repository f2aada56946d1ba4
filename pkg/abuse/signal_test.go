package abuse

import "testing"

func TestEvaluateUserAgentMissing(t *testing.T) {
	sig := EvaluateUserAgent("   ", nil)
	if !sig.Suspicious || sig.Reason != "missing" {
		t.Fatalf("unexpected signal: %+v", sig)
	}
}

func TestEvaluateUserAgentMatchesKnownClients(t *testing.T) {
	cases := map[string]string{
		"curl/8.1.2":                     "curl",
		"Wget/1.21":                      "wget",
		"python-requests/2.31":           "python-requests",
		"Apache-HttpClient/4.5 (Java)":   "httpclient",
		"Mozilla/5.0 PowerShell/7.3":     "powershell",
		"libwww-perl/6.67":               "libwww",
	}
	for ua, want := range cases {
		sig := EvaluateUserAgent(ua, nil)
		if !sig.Suspicious || sig.Matched != want {
			t.Fatalf("ua %q: got %+v, want matched=%s", ua, sig, want)
		}
	}
}

func TestEvaluateUserAgentAllowlistWins(t *testing.T) {
	sig := EvaluateUserAgent("curl/8.1.2 uptime-monitor", []string{"uptime-monitor"})
	if sig.Suspicious {
		t.Fatalf("allowlist should take priority, got %+v", sig)
	}
	if sig.Reason != "allowlisted" {
		t.Fatalf("unexpected reason: %q", sig.Reason)
	}
}

func TestEvaluateUserAgentBrowserIsBenign(t *testing.T) {
	sig := EvaluateUserAgent("Mozilla/5.0 (Macintosh) AppleWebKit/605.1.15", nil)
	if sig.Suspicious {
		t.Fatalf("browser flagged suspicious: %+v", sig)
	}
}
