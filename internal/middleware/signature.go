// Package middleware содержит HTTP middleware API кошелька.
package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader — заголовок с HMAC-подписью тела вебхука.
const SignatureHeader = "X-Webhook-Signature"

// SignatureMiddleware проверяет HMAC-SHA256 подпись тела вебхука общим секретом.
// Пустой секрет отключает проверку: шлюз в песочнице подписи не присылает.
type SignatureMiddleware struct {
	secretKey []byte
}

// NewSignatureMiddleware создаёт middleware с указанным общим секретом.
func NewSignatureMiddleware(secret string) *SignatureMiddleware {
	return &SignatureMiddleware{
		secretKey: []byte(secret),
	}
}

// Middleware сверяет подпись тела запроса с заголовком SignatureHeader.
// Тело восстанавливается для последующих обработчиков.
func (m *SignatureMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secretKey) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		signature, err := hex.DecodeString(r.Header.Get(SignatureHeader))
		if err != nil || !hmac.Equal(signature, m.sign(body)) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Sign возвращает hex-подпись тела для заголовка SignatureHeader.
func (m *SignatureMiddleware) Sign(body []byte) string {
	return hex.EncodeToString(m.sign(body))
}

func (m *SignatureMiddleware) sign(body []byte) []byte {
	mac := hmac.New(sha256.New, m.secretKey)
	mac.Write(body)
	return mac.Sum(nil)
}
