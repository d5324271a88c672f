// Package webfinger resolves name@host identifiers to account descriptors.
package webfinger

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/carlmjohnson/requests"
)

// Webfinger is the JRD document returned by a host's webfinger endpoint.
type Webfinger struct {
	Subject string   `json:"subject"`
	Aliases []string `json:"aliases"`
	Links   []Link   `json:"links"`
}

type Link struct {
	Rel      string `json:"rel"`
	Type     string `json:"type"`
	Href     string `json:"href"`
	Template string `json:"template"`
}

// ActivityPub returns the URL of the subject's ActivityPub descriptor.
func (wf *Webfinger) ActivityPub() (string, error) {
	for _, link := range wf.Links {
		if link.Type == "application/activity+json" {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("no ActivityPub link found")
}

// An Acct is a name@host identifier.
type Acct struct {
	Name string
	Host string
}

func (a *Acct) String() string {
	return "acct:" + a.Name + "@" + a.Host
}

// Webfinger returns the URL of the webfinger resource for this Acct.
func (a *Acct) Webfinger() string {
	return "https://" + a.Host + "/.well-known/webfinger?resource=" + url.QueryEscape(a.String())
}

// ID returns the canonical URL identifying this Acct.
func (a *Acct) ID() string {
	return "https://" + a.Host + "/accounts/" + a.Name
}

// Followers returns the URL of the followers collection for this Acct.
func (a *Acct) Followers() string {
	return a.ID() + "/followers"
}

// Following returns the URL of the following collection for this Acct.
func (a *Acct) Following() string {
	return a.ID() + "/following"
}

// Inbox returns the URL of the inbox for this Acct.
func (a *Acct) Inbox() string {
	return a.ID() + "/inbox"
}

// SharedInbox returns the URL of the host-wide shared inbox for this Acct.
func (a *Acct) SharedInbox() string {
	return "https://" + a.Host + "/inbox"
}

// Fetch retrieves the webfinger document for this Acct from its host.
func (a *Acct) Fetch(ctx context.Context) (*Webfinger, error) {
	var webfinger Webfinger
	err := requests.URL(a.Webfinger()).ToJSON(&webfinger).Fetch(ctx)
	return &webfinger, err
}

// Parse parses an acct:, @name@host or name@host identifier.
func Parse(query string) (*Acct, error) {
	query = strings.TrimPrefix(query, "acct:")
	query = strings.TrimPrefix(query, "@")
	query, err := url.QueryUnescape(query)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(query, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("invalid acct: %q", query)
	}
	return &Acct{
		Name: parts[0],
		Host: parts[1],
	}, nil
}
