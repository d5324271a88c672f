// Package httpsig signs outbound requests using the HTTP Signature scheme
// defined in draft-cavage-http-signatures-10.
package httpsig

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-fed/httpsig"
)

// Sign signs req with privateKey, identifying the key as keyID. For POST
// requests body must be the exact bytes that will be sent, as the Digest
// header is part of the signature.
func Sign(req *http.Request, keyID string, privateKey crypto.PrivateKey, body []byte) error {
	req.Header.Set("Date", time.Now().UTC().Format("Mon, 02 Jan 2006 15:04:05 GMT")) // Date must be in GMT, not UTC 🤯

	headers := []string{httpsig.RequestTarget}
	switch req.Method {
	case "GET":
		headers = append(headers, "host", "date", "accept")
	case "POST":
		headers = append(headers, "date", "digest")
		req.Header.Set("Digest", digest(body))
	}

	plaintext, err := signingString(req, headers)
	if err != nil {
		return err
	}
	hashed := sha256.Sum256([]byte(plaintext))
	sig, err := rsa.SignPKCS1v15(rand.Reader, privateKey.(*rsa.PrivateKey), crypto.SHA256, hashed[:])
	if err != nil {
		return err
	}
	req.Header.Set("Signature", fmt.Sprintf(
		`keyId="%s",algorithm="rsa-sha256",headers="%s",signature="%s"`,
		keyID, strings.Join(headers, " "), base64.StdEncoding.EncodeToString(sig),
	))
	return nil
}

// signingString assembles the plaintext covered by the signature, one
// "name: value" line per signed header, in order, without a trailing newline.
func signingString(req *http.Request, headers []string) (string, error) {
	var lines []string
	for _, header := range headers {
		switch header {
		case httpsig.RequestTarget:
			target := strings.ToLower(req.Method) + " " + req.URL.Path
			if req.URL.RawQuery != "" {
				target += "?" + req.URL.RawQuery
			}
			lines = append(lines, "(request-target): "+target)
		case "host":
			lines = append(lines, "host: "+req.Host)
		case "date", "accept", "digest":
			lines = append(lines, header+": "+req.Header.Get(http.CanonicalHeaderKey(header)))
		default:
			return "", fmt.Errorf("unknown header to sign: %s", header)
		}
	}
	return strings.Join(lines, "\n"), nil
}

func digest(body []byte) string {
	hashed := sha256.Sum256(body)
	return "SHA-256=" + base64.StdEncoding.EncodeToString(hashed[:])
}
