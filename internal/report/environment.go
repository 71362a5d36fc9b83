package report

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/zk/xray-reporter/internal/ipc"
)

// EnvironmentGroups buckets runner environment keys by their signature.
// Parallel runners of the same browser/capability share one signature.
type EnvironmentGroups struct {
	buckets        *orderedmap.OrderedMap[string, []string] // signature -> keys
	keyToSignature map[string]string
}

// GroupEnvironments classifies the runners listed in the end event. Keys and
// signatures both keep the order in which they were first listed.
func GroupEnvironments(runners *orderedmap.OrderedMap[string, ipc.RunnerStats]) *EnvironmentGroups {
	g := &EnvironmentGroups{
		buckets:        orderedmap.New[string, []string](),
		keyToSignature: make(map[string]string),
	}
	if runners == nil {
		return g
	}

	for pair := runners.Oldest(); pair != nil; pair = pair.Next() {
		key, signature := pair.Key, pair.Value.SanitizedCapabilities
		g.keyToSignature[key] = signature
		keys, _ := g.buckets.Get(signature)
		g.buckets.Set(signature, append(keys, key))
	}
	return g
}

// Signatures returns the distinct signatures in first-seen order
func (g *EnvironmentGroups) Signatures() []string {
	signatures := make([]string, 0, g.buckets.Len())
	for pair := g.buckets.Oldest(); pair != nil; pair = pair.Next() {
		signatures = append(signatures, pair.Key)
	}
	return signatures
}

// Keys returns the environment keys sharing a signature
func (g *EnvironmentGroups) Keys(signature string) []string {
	keys, _ := g.buckets.Get(signature)
	return keys
}

// SignatureOf returns the signature of an environment key
func (g *EnvironmentGroups) SignatureOf(key string) (string, bool) {
	signature, ok := g.keyToSignature[key]
	return signature, ok
}
