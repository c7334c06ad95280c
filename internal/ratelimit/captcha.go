package ratelimit

import "strings"

// captchaBodyPatterns are substrings whose case-insensitive presence in a
// response body unconditionally marks it as a CAPTCHA challenge (spec.md
// §4.1 rule 2). The bare words "captcha"/"challenge"/"verify" are
// deliberately excluded from this unconditional set: they are common
// enough in ordinary page text that an unconditional match produces false
// positives. Those three only count under rule 1 (gatedStatusCodes) or
// rule 5 (shortBodyTriggers).
var captchaBodyPatterns = []string{
	"recaptcha",
	"g-recaptcha",
	"hcaptcha",
	"cloudflare",
	"ray id",
	"verifying you are human",
	"checking your browser",
	"access denied",
	"unusual traffic",
	"are you a robot",
	"security check",
	"bot detection",
	"please enable javascript and cookies",
	"automated requests",
}

// captchaMarkupTokens are literal markup fragments that strongly indicate
// a CAPTCHA widget regardless of body length.
var captchaMarkupTokens = []string{
	"data-sitekey=",
	"cf-browser-verification",
	"grecaptcha.render",
	"turnstile.render",
}

// shortBodyTriggers are the narrower token set used only when the body is
// small, per spec.md §4.1's "<5000 bytes AND contains any of" rule.
var shortBodyTriggers = []string{"challenge", "verify", "access"}

// gatedStatusCodes require a CAPTCHA-bearing body to qualify, per spec.md.
var gatedStatusCodes = map[int]bool{403: true, 406: true, 503: true}

// DetectCaptcha classifies an HTTP response per the rules in spec.md §4.1.
// It never inspects the network; callers pass in status, header, and body.
func DetectCaptcha(status int, headers map[string]string, body []byte) bool {
	lower := strings.ToLower(string(body))

	if gatedStatusCodes[status] {
		for _, p := range []string{"captcha", "challenge", "verify"} {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}

	for _, p := range captchaBodyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	for _, t := range captchaMarkupTokens {
		if strings.Contains(lower, t) {
			return true
		}
	}

	for k, v := range headers {
		if strings.EqualFold(k, "x-captcha-required") && v != "" {
			return true
		}
	}

	if len(body) < 5000 {
		for _, p := range shortBodyTriggers {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}

	return false
}
