package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// visitorCookieName はビジターIDを保持する署名付きCookieの名前。
	visitorCookieName = "visitor"
	visitorIssuer     = "socialhub"
)

// VisitorConfig はビジターミドルウェアの設定。
type VisitorConfig struct {
	Secret []byte
	TTL    time.Duration
	Cookie CookieConfig
}

// NewVisitorMiddleware はブラウザごとのビジターIDを署名付きCookieで払い出すミドルウェアを返す。
// ビジターIDはログイン状態に依存せず、保留中のソーシャルログインやフラッシュの保存先のキーになる。
// Cookieがない、署名が不正、期限切れの場合は新しいIDを発行する。
// 有効期間の半分を過ぎたトークンは同じIDのまま再発行し、利用中のブラウザのIDが途中で切れないようにする。
func NewVisitorMiddleware(cfg VisitorConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()

			visitorID, expiresAt, err := readVisitorCookie(r, cfg.Secret)
			issue := false
			switch {
			case err != nil:
				visitorID = uuid.NewString()
				issue = true
			case expiresAt.Sub(now) < cfg.TTL/2:
				issue = true
			}

			if issue {
				if err := setVisitorCookie(w, cfg, visitorID, now); err != nil {
					slog.Error("failed to sign visitor token",
						slog.String("error", err.Error()),
					)
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithVisitorID(r.Context(), visitorID)))
		})
	}
}

func setVisitorCookie(w http.ResponseWriter, cfg VisitorConfig, visitorID string, now time.Time) error {
	token, err := signVisitorToken(visitorID, cfg.Secret, cfg.TTL, now)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookieName,
		Value:    token,
		Path:     "/",
		Domain:   cfg.Cookie.Domain,
		MaxAge:   int(cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// VisitorIDFromContext はリクエストコンテキストからビジターIDを取得する。
func VisitorIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(visitorContextKey).(string)
	return id
}

// ContextWithVisitorID はコンテキストにビジターIDを注入する。
func ContextWithVisitorID(ctx context.Context, visitorID string) context.Context {
	return context.WithValue(ctx, visitorContextKey, visitorID)
}

func signVisitorToken(visitorID string, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   visitorID,
		Issuer:    visitorIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// readVisitorCookie は検証済みのビジターIDとトークンの有効期限を返す。
func readVisitorCookie(r *http.Request, secret []byte) (string, time.Time, error) {
	cookie, err := r.Cookie(visitorCookieName)
	if err != nil {
		return "", time.Time{}, err
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(visitorIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", time.Time{}, err
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", time.Time{}, errors.New("visitor subject is not a uuid")
	}
	return claims.Subject, claims.ExpiresAt.Time, nil
}
