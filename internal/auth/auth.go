package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrMissingToken 表示请求没有携带凭证。
	ErrMissingToken = errors.New("缺少访问令牌")
	// ErrInvalidToken 表示凭证格式错误或不在白名单内。
	ErrInvalidToken = errors.New("访问令牌无效")
)

// Subject 描述一次通过认证的调用方。令牌本身不会被保存，只保留指纹用于审计。
type Subject struct {
	Fingerprint string
}

// TokenAuthenticator 基于静态令牌白名单校验 Bearer 凭证。
type TokenAuthenticator struct {
	digests [][sha256.Size]byte
}

// NewTokenAuthenticator 构造认证器。空白令牌会被忽略；没有任何有效令牌时所有凭证都无效。
func NewTokenAuthenticator(tokens []string) *TokenAuthenticator {
	a := &TokenAuthenticator{}
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		a.digests = append(a.digests, sha256.Sum256([]byte(token)))
	}
	return a
}

// Enabled 返回是否配置了令牌。
func (a *TokenAuthenticator) Enabled() bool {
	return a != nil && len(a.digests) > 0
}

// Authenticate 解析 Authorization 头并与白名单逐一做常量时间比较。
func (a *TokenAuthenticator) Authenticate(header string) (*Subject, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return nil, ErrInvalidToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}
	if !a.Enabled() {
		return nil, ErrInvalidToken
	}
	digest := sha256.Sum256([]byte(token))
	matched := 0
	for _, candidate := range a.digests {
		matched |= subtle.ConstantTimeCompare(candidate[:], digest[:])
	}
	if matched != 1 {
		return nil, ErrInvalidToken
	}
	return &Subject{Fingerprint: hex.EncodeToString(digest[:4])}, nil
}
