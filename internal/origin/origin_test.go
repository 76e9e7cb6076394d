package origin

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		normalized string
		host       string
		ok         bool
	}{
		{"lowercases and drops default https port", "HTTPS://Example.COM:443", "https://example.com", "example.com", true},
		{"drops default http port", "http://example.com:80", "http://example.com", "example.com", true},
		{"keeps explicit port", "https://example.com:8443", "https://example.com:8443", "example.com:8443", true},
		{"null origin", "null", "null", "", true},
		{"ipv6 literal", "http://[::1]:8080", "http://[::1]:8080", "[::1]:8080", true},
		{"ipv6 default port", "https://[2001:db8::1]:443", "https://[2001:db8::1]", "[2001:db8::1]", true},
		{"empty", "", "", "", false},
		{"non-http scheme", "ftp://example.com", "", "", false},
		{"path", "https://example.com/path", "", "", false},
		{"query", "https://example.com?q=1", "", "", false},
		{"fragment", "https://example.com#frag", "", "", false},
		{"userinfo", "https://user@example.com", "", "", false},
		{"port zero", "https://example.com:0", "", "", false},
		{"port out of range", "https://example.com:70000", "", "", false},
		{"empty port", "https://example.com:", "", "", false},
		{"unbracketed ipv6", "https://2001:db8::1", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			normalized, host, ok := Normalize(tt.header)
			if ok != tt.ok {
				t.Fatalf("ok=%v, want %v", ok, tt.ok)
			}
			if normalized != tt.normalized || host != tt.host {
				t.Fatalf("got (%q, %q), want (%q, %q)", normalized, host, tt.normalized, tt.host)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	allowList := []string{"https://app.example.com"}

	if !Allowed("https://app.example.com", allowList) {
		t.Fatalf("exact match rejected")
	}
	if !Allowed("https://app.example.com:443", allowList) {
		t.Fatalf("default port rejected against portless entry")
	}
	if !Allowed("HTTPS://APP.Example.COM", allowList) {
		t.Fatalf("case variant rejected")
	}
	if !Allowed("https://app.example.com", []string{"https://app.example.com:443"}) {
		t.Fatalf("portless header rejected against default-port entry")
	}
	if Allowed("https://evil.example.com", allowList) {
		t.Fatalf("unlisted origin allowed")
	}
	if Allowed("https://app.example.com:8443", allowList) {
		t.Fatalf("non-default port allowed against portless entry")
	}

	if !Allowed("https://anything.example.com", nil) {
		t.Fatalf("empty allow list must admit valid origins")
	}
	if Allowed("not a url", nil) {
		t.Fatalf("malformed origin allowed by empty list")
	}
	if !Allowed("https://whoever.example.com", []string{"*"}) {
		t.Fatalf("wildcard entry rejected an origin")
	}
}

func FuzzNormalize(f *testing.F) {
	f.Add("HTTPS://Example.COM:443")
	f.Add("http://example.com:80")
	f.Add("https://example.com:8443")
	f.Add("null")
	f.Add("http://[::1]:8080")
	f.Add("ftp://example.com")
	f.Add("https://example.com/path")
	f.Fuzz(func(t *testing.T, header string) {
		normalized, _, ok := Normalize(header)
		if !ok {
			return
		}
		// Canonical form must be a fixed point.
		again, _, ok2 := Normalize(normalized)
		if !ok2 || again != normalized {
			t.Fatalf("Normalize(%q)=%q is not canonical (again=%q, ok=%v)", header, normalized, again, ok2)
		}
	})
}
