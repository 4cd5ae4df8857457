package models

import "time"

// Protocol message kinds. Exact values are a deployment/compatibility concern and
// are treated as opaque discriminators everywhere else in the engine.
const (
	KindJobRequest   = 5204
	KindJobResult    = 6204
	KindJobStatus    = 7000
	KindAdminRpc     = 25910
	KindAnnouncement = 31990
)

// Tag vocabulary.
const (
	TagRecipient = "p"
	TagReference = "e"
	TagService   = "d"
	TagKind      = "k"
	TagInput     = "i"
	TagParam     = "param"
	TagRelays    = "relays"
	TagName      = "name"
	TagAbout     = "about"
	TagOperator  = "operator"
	TagLastSeen  = "last-seen"
	TagEncrypted = "encrypted"
	TagStatus    = "status"
	TagOutput    = "output"
)

const DefaultServiceId = "video-transcode"

const DefaultRpcTimeout = 30 * time.Second
const DefaultDiscoveryBudget = 10 * time.Second
const DefaultStaleCutoff = time.Hour
const DefaultDedupCacheSize = 8192
const DefaultSubscriptionBuffer = 64

var DefaultRelays = []string{
	"wss://relay.damus.io",
	"wss://relay.primal.net",
	"wss://nos.lol",
}
