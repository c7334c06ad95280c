package ratelimit

import "math/rand"

// userAgents is the small rotating pool named in spec.md §4.1.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// rotationProbability is the per-request chance of switching user agent,
// per spec.md §4.1.
const rotationProbability = 0.3

// UserAgentPicker hands out a rotating User-Agent header value.
type UserAgentPicker struct {
	current string
	rng     *rand.Rand
}

// NewUserAgentPicker seeds the picker with the first agent in the pool.
func NewUserAgentPicker(rng *rand.Rand) *UserAgentPicker {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &UserAgentPicker{current: userAgents[0], rng: rng}
}

// Next returns the User-Agent to use for the upcoming request, rotating
// with probability rotationProbability.
func (p *UserAgentPicker) Next() string {
	if p.rng.Float64() < rotationProbability {
		p.current = userAgents[p.rng.Intn(len(userAgents))]
	}
	return p.current
}
