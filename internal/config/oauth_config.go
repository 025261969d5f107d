package config

import "time"

type OAuthConfig interface {
	GetStateTTL() time.Duration
	GetHTTPTimeout() time.Duration
	GetLoginBaseURL() string
	GetGraphBaseURL() string
	GetDefaultScope() string
	GetRefreshInterval() time.Duration
	GetClientsFile() string
	GetClientCacheTTL() time.Duration
}

type OAuth struct {
	StateTTL        time.Duration `env:"STATE_TTL" envDefault:"10m"`
	HTTPTimeout     time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	LoginBaseURL    string        `env:"AZURE_LOGIN_BASE_URL" envDefault:"https://login.microsoftonline.com"`
	GraphBaseURL    string        `env:"AZURE_GRAPH_BASE_URL" envDefault:"https://graph.microsoft.com"`
	DefaultScope    string        `env:"DEFAULT_SCOPE" envDefault:"openid profile email User.Read"`
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL" envDefault:"100ms"`
	ClientsFile     string        `env:"CLIENTS_FILE"`
	ClientCacheTTL  time.Duration `env:"CLIENT_CACHE_TTL" envDefault:"5s"`
}

var _ OAuthConfig = OAuth{}

func (o OAuth) GetStateTTL() time.Duration {
	return o.StateTTL
}

func (o OAuth) GetHTTPTimeout() time.Duration {
	return o.HTTPTimeout
}

func (o OAuth) GetLoginBaseURL() string {
	return o.LoginBaseURL
}

func (o OAuth) GetGraphBaseURL() string {
	return o.GraphBaseURL
}

func (o OAuth) GetDefaultScope() string {
	return o.DefaultScope
}

// GetRefreshInterval is the pause between provider calls in a batch token refresh.
func (o OAuth) GetRefreshInterval() time.Duration {
	return o.RefreshInterval
}

func (o OAuth) GetClientsFile() string {
	return o.ClientsFile
}

// GetClientCacheTTL bounds how long a registration changed by another process may still
// be served. Zero disables the cache.
func (o OAuth) GetClientCacheTTL() time.Duration {
	return o.ClientCacheTTL
}
