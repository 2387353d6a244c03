package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/hongminglow/nova-be/internal/apperr"
	"github.com/hongminglow/nova-be/internal/envelope"
	"github.com/hongminglow/nova-be/internal/http/respond"
	"github.com/hongminglow/nova-be/internal/metrics"
)

const maxEnvelopeBytes = 1 << 20

// DecryptBody replaces an {"encrypted": "..."} body with its plaintext.
// Bodies without the field pass through untouched. When decryption fails
// and the body has other fields, the encrypted field is dropped and the
// rest is used; an encrypted-only body that fails is DecryptionFailed.
func DecryptBody(c *envelope.Cipher, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body == nil {
				next.ServeHTTP(w, r)
				return
			}
			raw, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes))
			_ = r.Body.Close()
			if err != nil {
				respond.Fail(w, apperr.Invalid("could not read request body"), RequestID(r.Context()))
				return
			}

			body, err := openEnvelope(c, raw)
			if err != nil {
				m.DecryptFailed()
				respond.Fail(w, err, RequestID(r.Context()))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			next.ServeHTTP(w, r)
		})
	}
}

func openEnvelope(c *envelope.Cipher, raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return raw, nil
	}
	sealed, ok := fields["encrypted"]
	if !ok {
		return raw, nil
	}

	var payload string
	if err := json.Unmarshal(sealed, &payload); err == nil {
		if plain, err := c.Decrypt(payload); err == nil && json.Valid(plain) {
			return plain, nil
		}
	}
	if len(fields) == 1 {
		return nil, apperr.ErrDecryptionFailed
	}
	delete(fields, "encrypted")
	rest, err := json.Marshal(fields)
	if err != nil {
		return nil, apperr.ErrDecryptionFailed
	}
	return rest, nil
}
