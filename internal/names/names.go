// Package names generates the adjective-animal identities agents are
// known by.
package names

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/user/talkto/internal/types"
)

// CreatorName is the reserved name of the built-in system agent.
const CreatorName = "the_creator"

var adjectives = []string{
	"amber", "brisk", "calm", "cosmic", "crimson", "daring", "dusty",
	"eager", "electric", "fuzzy", "gentle", "golden", "happy", "hidden",
	"iron", "jolly", "keen", "lucky", "lunar", "mellow", "mighty",
	"nimble", "noble", "polar", "quick", "quiet", "rapid", "rustic",
	"silent", "silver", "sly", "snappy", "solar", "stellar", "stormy",
	"swift", "tidal", "turbo", "velvet", "vivid", "wild", "witty",
	"zen", "zesty",
}

var animals = []string{
	"badger", "beaver", "bison", "condor", "coyote", "crane", "dolphin",
	"falcon", "ferret", "finch", "flamingo", "fox", "gecko", "heron",
	"ibis", "jackal", "koala", "lemur", "lynx", "macaw", "marmot",
	"mole", "narwhal", "ocelot", "orca", "otter", "owl", "panda",
	"pelican", "penguin", "puffin", "quokka", "raccoon", "raven",
	"salmon", "seal", "sparrow", "stork", "tapir", "toucan", "viper",
	"walrus", "wombat", "yak",
}

// Generate returns the adjective-animal name for a seed. The same seed
// always yields the same name.
func Generate(seed string) string {
	h := fnv.New64a()
	h.Write([]byte(seed))
	sum := h.Sum64()
	adj := adjectives[sum%uint64(len(adjectives))]
	animal := animals[(sum/uint64(len(adjectives)))%uint64(len(animals))]
	return adj + "-" + animal
}

// GenerateFresh returns a name seeded with the inputs plus entropy, so
// repeated calls differ.
func GenerateFresh(projectName string, agentType types.AgentType, attempt int) string {
	seed := fmt.Sprintf("%s:%s:%d:%d:%d", projectName, agentType, attempt, time.Now().UnixNano(), rand.Int63())
	return Generate(seed)
}

// GenerateUnique retries GenerateFresh until the name is unused. taken
// reports whether a name is already claimed.
func GenerateUnique(ctx context.Context, projectName string, agentType types.AgentType, taken func(ctx context.Context, name string) (bool, error)) (string, error) {
	const maxAttempts = 20
	for attempt := 0; attempt < maxAttempts; attempt++ {
		name := GenerateFresh(projectName, agentType, attempt)
		inUse, err := taken(ctx, name)
		if err != nil {
			return "", err
		}
		if !inUse {
			return name, nil
		}
	}
	return "", fmt.Errorf("could not generate a unique agent name after %d attempts", maxAttempts)
}
