package activitypub

import (
	"context"
	"fmt"
	"net/url"

	"github.com/vidpod/vidpod/internal/activitypub"
	"github.com/vidpod/vidpod/internal/snowflake"
	"github.com/vidpod/vidpod/internal/webfinger"
	"github.com/vidpod/vidpod/models"
)

// RemoteAccountFetcher discovers accounts on other pods. Discovery is a
// webfinger lookup of name@host followed by a signed fetch of the account's
// ActivityPub descriptor. Fetched accounts are plain values; the caller
// decides whether to persist them.
type RemoteAccountFetcher struct {
	// signAs is the account that will be used to sign the requests
	signAs *models.Account
}

func NewRemoteAccountFetcher(signAs *models.Account) *RemoteAccountFetcher {
	return &RemoteAccountFetcher{
		signAs: signAs,
	}
}

// actorDescriptor is the subset of a remote actor document this pod needs.
type actorDescriptor struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	PreferredUsername string `json:"preferredUsername"`
	Name              string `json:"name"`
	Inbox             string `json:"inbox"`
	Followers         string `json:"followers"`
	Endpoints         struct {
		SharedInbox string `json:"sharedInbox"`
	} `json:"endpoints"`
	PublicKey struct {
		ID           string `json:"id"`
		Owner        string `json:"owner"`
		PublicKeyPem string `json:"publicKeyPem"`
	} `json:"publicKey"`
}

// Fetch resolves (name, host) to a non-persisted Account value.
func (f *RemoteAccountFetcher) Fetch(ctx context.Context, name, host string) (*models.Account, error) {
	acct := &webfinger.Acct{Name: name, Host: host}
	wf, err := acct.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("webfinger lookup of %s: %w", acct, err)
	}
	self, err := wf.ActivityPub()
	if err != nil {
		return nil, fmt.Errorf("webfinger lookup of %s: %w", acct, err)
	}
	return f.FetchURL(ctx, self)
}

// FetchURL fetches an actor descriptor directly by its identity URL,
// skipping the webfinger step.
func (f *RemoteAccountFetcher) FetchURL(ctx context.Context, self string) (*models.Account, error) {
	client, err := activitypub.NewClient(f.signAs)
	if err != nil {
		return nil, err
	}
	var descriptor actorDescriptor
	if err := client.Fetch(ctx, self, &descriptor); err != nil {
		return nil, fmt.Errorf("fetch actor %s: %w", self, err)
	}
	if descriptor.ID == "" || descriptor.Inbox == "" {
		return nil, fmt.Errorf("actor %s: descriptor missing id or inbox", self)
	}
	u, err := url.Parse(descriptor.ID)
	if err != nil {
		return nil, err
	}

	displayName := descriptor.Name
	if displayName == "" {
		displayName = descriptor.PreferredUsername
	}
	return &models.Account{
		ID:             snowflake.Now(),
		Name:           descriptor.PreferredUsername,
		Host:           u.Host,
		DisplayName:    displayName,
		URL:            descriptor.ID,
		Local:          false,
		InboxURL:       descriptor.Inbox,
		SharedInboxURL: descriptor.Endpoints.SharedInbox,
		FollowersURL:   descriptor.Followers,
		PublicKey:      []byte(descriptor.PublicKey.PublicKeyPem),
	}, nil
}
