package auth

import "net/http"

// APIKeyHeader is the header NuGet clients send on push and delete.
const APIKeyHeader = "X-NuGet-ApiKey"

// APIKey extracts the API key from a request. Empty when absent.
func APIKey(req *http.Request) string {
	return req.Header.Get(APIKeyHeader)
}
