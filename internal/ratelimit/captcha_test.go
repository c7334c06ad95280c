package ratelimit

import (
	"strings"
	"testing"
)

func pad(n int) string {
	return strings.Repeat("x", n)
}

func TestDetectCaptcha(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		want    bool
	}{
		{
			name:   "403 with captcha keyword",
			status: 403,
			body:   "Access blocked: please solve this captcha to continue",
			want:   true,
		},
		{
			name:   "200 with recaptcha markup",
			status: 200,
			body:   `<div class="g-recaptcha" data-sitekey="abc"></div>`,
			want:   true,
		},
		{
			name:   "turnstile render token",
			status: 200,
			body:   "window.onload = function(){ turnstile.render('#widget') }",
			want:   true,
		},
		{
			name:    "captcha required header",
			status:  200,
			headers: map[string]string{"X-Captcha-Required": "1"},
			body:    "ok",
			want:    true,
		},
		{
			name:   "short body with verify",
			status: 200,
			body:   "please verify access",
			want:   true,
		},
		{
			name:   "normal json response",
			status: 200,
			body:   `{"newspapers":[{"lccn":"sn84038012"}],"totalPages":10}`,
			want:   false,
		},
		{
			name:   "403 without captcha markers or short-body triggers",
			status: 403,
			body:   "Forbidden: insufficient permissions for this resource. " + pad(5000),
			want:   false,
		},
		{
			name:   "200 with long body mentioning verify in ordinary text",
			status: 200,
			body:   "Please verify your email address to continue using this service. " + pad(5000),
			want:   false,
		},
		{
			name:   "200 with long body mentioning challenge in ordinary text",
			status: 200,
			body:   "Today's challenge is to read the full archive. " + pad(5000),
			want:   false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectCaptcha(tc.status, tc.headers, []byte(tc.body))
			if got != tc.want {
				t.Errorf("DetectCaptcha(%d, %v, %q) = %v, want %v", tc.status, tc.headers, tc.body, got, tc.want)
			}
		})
	}
}
