package twilio

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"encoding/base64"
	"net/url"
	"sort"
)

// ValidateSignature checks an X-Twilio-Signature header: HMAC-SHA1 over the
// full request URL with the POST parameters appended in sorted key order,
// base64-encoded, keyed by the account auth token.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	payload := fullURL
	for _, k := range keys {
		// Twilio concatenates key + first value, unescaped.
		payload += k + form.Get(k)
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(payload))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
