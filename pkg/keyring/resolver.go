// Package keyring decides which credential a request may use for a provider.
// Resolution is read-only; the outcome is a key plus a source tag the router
// maps to HTTP statuses.
package keyring

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/gencohq/genco/pkg/kv"
)

type Source string

const (
	SourceClient           Source = "client"
	SourceKV               Source = "kv"
	SourceClientNotAllowed Source = "client-not-allowed"
	SourceKVError          Source = "kv-error"
	SourceNotFound         Source = "not-found"
	SourceMissingProvider  Source = "missing-provider"
)

// EnvSource tags a key found in the environment with the variable it came
// from, e.g. "env:OPENAI_API_KEY".
func EnvSource(name string) Source {
	return Source("env:" + name)
}

type Resolution struct {
	Key    string
	Source Source
}

type Resolver struct {
	// Lookup resolves environment variables. Injected so precedence is
	// testable without touching the process env.
	Lookup func(string) string

	// Store is the external key-value binding; nil when unbound.
	Store kv.Store
}

// Well-known providers keep their canonical variable names ahead of the
// generic AI_API_KEY_<PROVIDER> form.
var explicitEnvNames = map[string][]string{
	"openai": {"OPENAI_API_KEY", "AI_API_KEY_OPENAI"},
	"gemini": {"GEMINI_API_KEY", "AI_API_KEY_GEMINI"},
}

// Resolve picks the credential for a provider. A caller-supplied key is
// honored only for loopback or private-network origins; this is a hard
// security boundary, not a convenience check. Otherwise the environment is
// probed (provider-specific names, then AI_API_KEY_<PROVIDER>, then the
// AI_API_KEY fallback) and finally the KV record key:<provider>. A KV read
// failure is reported as kv-error, distinct from absence.
func (r *Resolver) Resolve(ctx context.Context, provider, clientKey, origin string) Resolution {
	if key := strings.TrimSpace(clientKey); key != "" {
		if OriginIsLocal(origin) {
			return Resolution{Key: key, Source: SourceClient}
		}
		return Resolution{Source: SourceClientNotAllowed}
	}

	p := strings.ToLower(strings.TrimSpace(provider))
	if p == "" {
		return Resolution{Source: SourceMissingProvider}
	}

	candidates := append(append([]string{}, explicitEnvNames[p]...),
		"AI_API_KEY_"+strings.ToUpper(p), "AI_API_KEY")
	for _, name := range candidates {
		if r.Lookup == nil {
			break
		}
		if val := strings.TrimSpace(r.Lookup(name)); val != "" {
			return Resolution{Key: val, Source: EnvSource(name)}
		}
	}

	if r.Store != nil {
		val, err := r.Store.Get(ctx, KVKey(p))
		switch {
		case err == nil:
			if val = strings.TrimSpace(val); val != "" {
				return Resolution{Key: val, Source: SourceKV}
			}
		case !errors.Is(err, kv.ErrNotFound):
			return Resolution{Source: SourceKVError}
		}
	}

	return Resolution{Source: SourceNotFound}
}

// KVKey is the key-value record name holding a provider's API key.
func KVKey(provider string) string {
	return "key:" + strings.ToLower(strings.TrimSpace(provider))
}

// OriginIsLocal reports whether an Origin header value points at a loopback
// or private-network host (10/8, 172.16/12, 192.168/16).
func OriginIsLocal(origin string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate()
}

// Mask renders a credential for unauthenticated display: first 4 characters
// plus an ellipsis.
func Mask(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return key + "..."
	}
	return key[:4] + "..."
}
