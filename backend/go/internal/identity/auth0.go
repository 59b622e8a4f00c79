package identity

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"foodietrack/backend/go/internal/apperr"
	"foodietrack/backend/go/internal/config"
	httpclient "foodietrack/backend/go/pkg/http"

	"github.com/golang-jwt/jwt"
	"golang.org/x/sync/singleflight"
)

// Auth0Verifier 用 Auth0 租户公布的 JWKS 校验 RS256 访问令牌。
type Auth0Verifier struct {
	issuer   string
	audience string
	jwks     *jwksCache
}

// NewAuth0Verifier 为 domain (例如 "foodietrack.us.auth0.com") 创建校验器。
// audience 为空时不校验 aud；client 为空时使用不带熔断的默认客户端。
func NewAuth0Verifier(domain, audience string, ttl time.Duration, client *httpclient.Client) (*Auth0Verifier, error) {
	domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(domain), "https://"), "/")
	if domain == "" {
		return nil, errors.New("auth0 domain is empty")
	}
	base := "https://" + domain
	return newJWKSVerifier(base+"/", base+"/.well-known/jwks.json", audience, ttl, client), nil
}

func newJWKSVerifier(issuer, jwksURL, audience string, ttl time.Duration, client *httpclient.Client) *Auth0Verifier {
	if client == nil {
		client = httpclient.NewClient("jwks", config.CircuitBreakerConfig{}, httpclient.WithTimeout(10*time.Second))
	}
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Auth0Verifier{
		issuer:   issuer,
		audience: audience,
		jwks: &jwksCache{
			client:     client,
			url:        jwksURL,
			ttl:        ttl,
			minRefresh: minJWKSRefresh,
			now:        time.Now,
			keys:       map[string]*rsa.PublicKey{},
		},
	}
}

// Verify 实现 Verifier。
func (v *Auth0Verifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	const op = "identity.Auth0Verifier.Verify"
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodRS256.Alg()}}
	token, err := parser.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid")
		}
		return v.jwks.getKey(ctx, kid)
	})
	if err != nil {
		return nil, apperr.Unauthenticated(op, "无效的 token", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, apperr.Unauthenticated(op, "无效的 token", nil)
	}
	if _, hasExp := claims["exp"]; !hasExp {
		return nil, apperr.Unauthenticated(op, "token 缺少 exp", nil)
	}
	if iss, _ := claims["iss"].(string); iss != v.issuer {
		return nil, apperr.Unauthenticated(op, fmt.Sprintf("issuer mismatch: %q", iss), nil)
	}
	if v.audience != "" && !audContains(claims["aud"], v.audience) {
		return nil, apperr.Unauthenticated(op, "audience mismatch", nil)
	}
	return identityFromClaims(op, claims)
}

var _ Verifier = (*Auth0Verifier)(nil)

// ----- JWKS cache -----

// minJWKSRefresh 是两次拉取 JWKS 之间的最小间隔，未知 kid 不会绕过它。
const minJWKSRefresh = time.Minute

type jwksCache struct {
	client     *httpclient.Client
	url        string
	ttl        time.Duration
	minRefresh time.Duration
	now        func() time.Time
	group      singleflight.Group

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	fetchedAt   time.Time
	lastAttempt time.Time
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (j *jwksCache) getKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	j.mu.RLock()
	key := j.keys[kid]
	stale := j.now().Sub(j.fetchedAt) > j.ttl
	j.mu.RUnlock()

	if key != nil && !stale {
		return key, nil
	}

	// 未知 kid 或缓存过期时重新拉取；拉取失败时退回到已缓存的公钥。
	_, err, _ := j.group.Do("jwks", func() (interface{}, error) {
		return nil, j.refresh(ctx)
	})
	if err != nil && key == nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if k := j.keys[kid]; k != nil {
		return k, nil
	}
	if key != nil {
		return key, nil
	}
	return nil, fmt.Errorf("kid not found in jwks: %s", kid)
}

// refresh 拉取 JWKS。距上次尝试不足 minRefresh 时直接返回，失败的尝试同样计入间隔。
func (j *jwksCache) refresh(ctx context.Context) error {
	j.mu.Lock()
	now := j.now()
	if !j.lastAttempt.IsZero() && now.Sub(j.lastAttempt) < j.minRefresh {
		j.mu.Unlock()
		return nil
	}
	j.lastAttempt = now
	j.mu.Unlock()

	var set jwkSet
	if err := j.client.DoJSON(ctx, http.MethodGet, j.url, nil, nil, &set); err != nil {
		return fmt.Errorf("jwks fetch failed: %w", err)
	}

	next := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if k.Kty != "RSA" || strings.TrimSpace(k.Kid) == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		if pub, err := rsaFromModExp(k.N, k.E); err == nil {
			next[k.Kid] = pub
		}
	}
	if len(next) == 0 {
		return errors.New("jwks contained no usable keys")
	}

	j.mu.Lock()
	j.keys = next
	j.fetchedAt = j.now()
	j.mu.Unlock()
	return nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, err
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, err
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e == 0 {
		return nil, errors.New("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
