package domain

// Backing kinds for a subdomain binding.
const (
	BackingLiveProcess    = "LIVE_PROCESS"
	BackingStaticArtifact = "STATIC_ARTIFACT"
)

// SubdomainBinding maps a subdomain to either a live process endpoint or the
// storage root of a prebuilt static bundle. LIVE_PROCESS bindings are removed
// when the backing container exits; STATIC_ARTIFACT bindings persist since
// they reference durable storage.
type SubdomainBinding struct {
	Subdomain    string
	BackingKind  string
	Endpoint     string
	ContainerRef string
}
