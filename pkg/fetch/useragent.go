package fetch

import "github.com/Sriram-PR/webfetch/pkg/config"

// PickUserAgent selects the identity for the counter-th request. It is a pure
// function of its inputs, so rotation order is reproducible.
func PickUserAgent(pool []string, counter uint64) string {
	if len(pool) == 0 {
		return config.DefaultUserAgent
	}
	return pool[counter%uint64(len(pool))]
}
