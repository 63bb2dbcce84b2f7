package auth

import "context"

// anonymous 是未认证请求的审计指纹。
const anonymous = "anonymous"

type subjectKey struct{}

// WithSubject 把认证结果挂到请求上下文，nil 不做任何改动。
func WithSubject(ctx context.Context, subject *Subject) context.Context {
	if subject == nil {
		return ctx
	}
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext 取出认证结果，第二个返回值表示请求是否经过认证。
func SubjectFromContext(ctx context.Context) (*Subject, bool) {
	if ctx == nil {
		return nil, false
	}
	subject, ok := ctx.Value(subjectKey{}).(*Subject)
	return subject, ok && subject != nil
}

// Fingerprint 返回调用方令牌的指纹，未认证或认证关闭时返回 anonymous。
func Fingerprint(ctx context.Context) string {
	if subject, ok := SubjectFromContext(ctx); ok && subject.Fingerprint != "" {
		return subject.Fingerprint
	}
	return anonymous
}
