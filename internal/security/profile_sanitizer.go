package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxDisplayNameLength は表示名として保存する最大文字数。
const maxDisplayNameLength = 255

// ProfileSanitizer はプロバイダーから受け取ったプロフィール項目を保存前に無害化する。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はタグを一切許可しないポリシーでProfileSanitizerを生成する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{policy: bluemonday.StrictPolicy()}
}

// DisplayName はHTMLタグを除去し、前後の空白を落として長さを制限した表示名を返す。
// 表示時にhtml/templateがエスケープするため、エンティティは元の文字に戻しておく。
func (s *ProfileSanitizer) DisplayName(raw string) string {
	cleaned := html.UnescapeString(s.policy.Sanitize(raw))
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxDisplayNameLength {
		cleaned = string(runes[:maxDisplayNameLength])
	}
	return cleaned
}

// URL は検証を通過したURLをそのまま返し、通過しなければ空文字を返す。
func (s *ProfileSanitizer) URL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || ValidateProfileURL(raw) != nil {
		return ""
	}
	return raw
}
