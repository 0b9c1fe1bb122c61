package furiosa

import "strings"

// Endpoint is the base URL of the compiler service API.
type Endpoint string

// Known API endpoints. Exactly one of them is compiled in as DefaultEndpoint.
const (
	SandboxEndpoint    Endpoint = "https://sandbox.api.furiosa.ai/api/v1"
	LocalEndpoint      Endpoint = "http://localhost:8080/api/v1"
	ProductionEndpoint Endpoint = "https://api.furiosa.ai/api/v1"
)

// URL joins the endpoint with an API path, keeping exactly one slash between them.
func (e Endpoint) URL(path string) string {
	return strings.TrimRight(string(e), "/") + "/" + strings.TrimLeft(path, "/")
}

func (e Endpoint) String() string { return string(e) }
