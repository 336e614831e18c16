package upstream

import (
	"strings"

	"google.golang.org/api/option"
)

// GoogleOptions returns client options for a generated Google API service
// authenticated as token. servicePath is the API's root below the host
// ("/calendar/v3/"; "/" for Gmail, whose method paths carry the version).
// Without a provider base URL the SDK's public endpoint is used.
func (p *Provider) GoogleOptions(token, servicePath string) []option.ClientOption {
	opts := []option.ClientOption{option.WithHTTPClient(p.BearerClient(token))}
	if p.baseURL != "" {
		opts = append(opts, option.WithEndpoint(p.baseURL+"/"+strings.TrimLeft(servicePath, "/")))
	}
	return opts
}
