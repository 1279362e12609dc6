// Copyright 2024 The Httpengine Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package httpengine

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caddyserver/httpengine/cachestore"
	"gopkg.in/yaml.v3"
)

// yamlConfig is the declarative on-disk shape of a Config, the way
// caddy's own JSON config has a plain-data shape that gets expanded into
// live objects during provisioning (caddyconfig). Durations are strings
// (e.g. "10s") rather than nanosecond integers for human editability.
type yamlConfig struct {
	FollowRedirects          *bool  `yaml:"follow_redirects"`
	FollowSslRedirects       *bool  `yaml:"follow_ssl_redirects"`
	RetryOnConnectionFailure *bool  `yaml:"retry_on_connection_failure"`
	ConnectTimeout           string `yaml:"connect_timeout"`
	ReadTimeout              string `yaml:"read_timeout"`
	WriteTimeout             string `yaml:"write_timeout"`

	MaxIdleConnectionsPerHost int    `yaml:"max_idle_connections_per_host"`
	IdleConnectionTimeout     string `yaml:"idle_connection_timeout"`
	MaxRequests               int    `yaml:"max_requests"`
	MaxRequestsPerHost        int    `yaml:"max_requests_per_host"`

	Proxy string `yaml:"proxy"`

	CacheDir string `yaml:"cache_dir"`
}

// ConfigFromYAML parses a declarative YAML document into a Config ready
// for NewClient. Unset fields keep DefaultConfig's zero values, which
// NewClient fills in.
func ConfigFromYAML(data []byte) (Config, error) {
	var y yamlConfig
	if err := yaml.Unmarshal(data, &y); err != nil {
		return Config{}, fmt.Errorf("httpengine: parsing yaml config: %w", err)
	}

	cfg := Config{}
	if y.FollowRedirects != nil {
		cfg.FollowRedirects = *y.FollowRedirects
	} else {
		cfg.FollowRedirects = true
	}
	if y.FollowSslRedirects != nil {
		cfg.FollowSslRedirects = *y.FollowSslRedirects
	}
	if y.RetryOnConnectionFailure != nil {
		cfg.RetryOnConnectionFailure = *y.RetryOnConnectionFailure
	} else {
		cfg.RetryOnConnectionFailure = true
	}

	var err error
	if cfg.ConnectTimeout, err = parseDuration(y.ConnectTimeout); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = parseDuration(y.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = parseDuration(y.WriteTimeout); err != nil {
		return Config{}, err
	}
	if cfg.IdleConnectionTimeout, err = parseDuration(y.IdleConnectionTimeout); err != nil {
		return Config{}, err
	}

	cfg.MaxIdleConnectionsPerHost = y.MaxIdleConnectionsPerHost
	cfg.MaxRequests = y.MaxRequests
	cfg.MaxRequestsPerHost = y.MaxRequestsPerHost

	if y.Proxy != "" {
		proxyURL, err := url.Parse(y.Proxy)
		if err != nil {
			return Config{}, fmt.Errorf("httpengine: parsing proxy url: %w", err)
		}
		cfg.Proxy = func(*Request) (*url.URL, error) { return proxyURL, nil }
	}

	if y.CacheDir != "" {
		store, err := cachestore.NewDiskStore(y.CacheDir)
		if err != nil {
			return Config{}, fmt.Errorf("httpengine: opening cache dir: %w", err)
		}
		cfg.Cache = store
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("httpengine: invalid duration %q: %w", s, err)
	}
	return d, nil
}
