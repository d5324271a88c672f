// Package activitypub provides a client for fetching and delivering
// ActivityPub resources over signed HTTP requests.
package activitypub

import (
	"context"
	"crypto"
	"crypto/rsa"
	"fmt"
	"net/http"

	"github.com/carlmjohnson/requests"

	"github.com/vidpod/vidpod/internal/httpsig"
)

// Signer represents an object that can sign HTTP requests.
type Signer interface {
	PublicKeyID() string
	PrivKey() (*rsa.PrivateKey, error)
}

// Client is an ActivityPub client which fetches remote resources and posts
// activities, signing every request as the configured account.
type Client struct {
	keyID      string
	privateKey crypto.PrivateKey
}

// NewClient returns a new ActivityPub client signing as signAs.
func NewClient(signAs Signer) (*Client, error) {
	privateKey, err := signAs.PrivKey()
	if err != nil {
		return nil, err
	}
	return &Client{
		keyID:      signAs.PublicKeyID(),
		privateKey: privateKey,
	}, nil
}

// Fetch fetches the ActivityPub resource at the given URL and decodes it into the given object.
func (c *Client) Fetch(ctx context.Context, uri string, obj interface{}) error {
	return requests.URL(uri).
		Accept(`application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, nil); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckContentType(
			"application/ld+json",
			"application/activity+json",
			"application/json",
			"application/octet-stream", // sigh
		).
		CheckStatus(http.StatusOK).
		ToJSON(obj).
		Fetch(ctx)
}

// Post delivers body to the given URL. body must be the final wire bytes of
// a signed activity; it is sent untouched so the embedded signature stays
// valid.
func (c *Client) Post(ctx context.Context, url string, body []byte) error {
	return requests.URL(url).
		BodyBytes(body).
		Header("Content-Type", `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`).
		Transport(requests.RoundTripFunc(func(req *http.Request) (*http.Response, error) {
			if err := httpsig.Sign(req, c.keyID, c.privateKey, body); err != nil {
				return nil, fmt.Errorf("failed to sign request: %w", err)
			}
			return http.DefaultTransport.RoundTrip(req)
		})).
		CheckStatus(
			http.StatusOK,
			http.StatusCreated,
			http.StatusAccepted,
			http.StatusNoContent,
		).
		Fetch(ctx)
}
