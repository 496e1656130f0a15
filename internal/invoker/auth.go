package invoker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/useembed/useembed/internal/registry"
)

// applyAuth injects credentials. Incomplete configs inject nothing.
func (i *Invoker) applyAuth(ctx context.Context, req *http.Request, api registry.API) error {
	cfg := api.Auth.Config
	switch api.Auth.Kind {
	case registry.AuthBearer:
		if token := stringArg(cfg, "token"); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	case registry.AuthAPIKey:
		key, name := stringArg(cfg, "key"), stringArg(cfg, "header_name")
		if key == "" || name == "" {
			return nil
		}
		if strings.EqualFold(stringArg(cfg, "in"), "query") {
			q := req.URL.Query()
			q.Set(name, key)
			req.URL.RawQuery = q.Encode()
			return nil
		}
		req.Header.Set(name, key)
	case registry.AuthBasic:
		if user := stringArg(cfg, "username"); user != "" {
			req.SetBasicAuth(user, stringArg(cfg, "password"))
		}
	case registry.AuthOAuth2:
		src := i.tokenSource(api)
		if src == nil {
			return nil
		}
		token, err := src.Token()
		if err != nil {
			return fmt.Errorf("oauth2 token: %w", err)
		}
		token.SetAuthHeader(req)
	}
	return nil
}

// tokenSource returns a cached client-credentials token source for the API,
// rebuilt whenever its oauth2 settings change.
func (i *Invoker) tokenSource(api registry.API) oauth2.TokenSource {
	cfg := api.Auth.Config
	conf := clientcredentials.Config{
		ClientID:     stringArg(cfg, "client_id"),
		ClientSecret: stringArg(cfg, "client_secret"),
		TokenURL:     stringArg(cfg, "token_url"),
		Scopes:       stringListArg(cfg, "scopes"),
	}
	if conf.ClientID == "" || conf.TokenURL == "" {
		return nil
	}
	if aud := stringArg(cfg, "audience"); aud != "" {
		conf.EndpointParams = url.Values{"audience": {aud}}
	}
	sum := sha256.Sum256([]byte(strings.Join(append([]string{conf.ClientID, conf.ClientSecret, conf.TokenURL}, conf.Scopes...), "\x00")))
	fingerprint := hex.EncodeToString(sum[:])

	i.mu.Lock()
	defer i.mu.Unlock()
	if cached, ok := i.tokens[api.ID]; ok && cached.fingerprint == fingerprint {
		return cached.source
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, i.client)
	src := conf.TokenSource(ctx)
	i.tokens[api.ID] = cachedTokenSource{fingerprint: fingerprint, source: src}
	return src
}

type cachedTokenSource struct {
	fingerprint string
	source      oauth2.TokenSource
}
