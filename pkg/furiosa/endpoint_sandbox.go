//go:build !local && !production

package furiosa

// DefaultEndpoint is the endpoint every Client talks to in this build.
const (
	DefaultEndpoint = SandboxEndpoint
	EndpointVariant = "sandbox"
)
