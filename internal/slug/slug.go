// Package slug generates human-readable subdomain labels.
package slug

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

var adjectives = []string{
	"amber", "bold", "brisk", "calm", "clever", "crimson", "early", "fancy",
	"gentle", "golden", "happy", "icy", "jolly", "keen", "lively", "mellow",
	"noble", "polished", "quiet", "rapid", "silent", "sturdy", "tidy", "vivid",
	"wandering", "young",
}

var nouns = []string{
	"aurora", "breeze", "canyon", "cedar", "comet", "dawn", "ember", "fjord",
	"glacier", "harbor", "island", "lagoon", "meadow", "nebula", "orchard",
	"pebble", "quartz", "ridge", "river", "summit", "thicket", "tundra",
	"valley", "willow",
}

var pattern = regexp.MustCompile(`^[a-z]+-[a-z]+-[a-z0-9]{4}$`)

// Generator produces unique subdomain slugs of the form
// adjective-noun-suffix, e.g. "golden-harbor-4c1a".
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator seeds a slug generator.
func NewGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// Next returns a fresh slug. The random suffix keeps repeated submissions for
// the same source reference on distinct subdomains.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	adj := adjectives[g.rng.Intn(len(adjectives))]
	noun := nouns[g.rng.Intn(len(nouns))]
	suffix := g.rng.Intn(0x10000)
	return fmt.Sprintf("%s-%s-%04x", adj, noun, suffix)
}

// Valid reports whether s matches the platform slug format.
func Valid(s string) bool {
	return pattern.MatchString(s)
}
