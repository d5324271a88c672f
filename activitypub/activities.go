// Package activitypub builds, signs and dispatches the activities a pod
// exchanges with the pods it federates with.
package activitypub

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/algorithms"
	"github.com/vidpod/vidpod/models"
)

const (
	CreateType = "Create"
	UpdateType = "Update"
	DeleteType = "Delete"
	AddType    = "Add"
	FollowType = "Follow"
	AcceptType = "Accept"
	RejectType = "Reject"

	// PublicAudience is the well-known sentinel addressing an activity to
	// the world at large.
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

// An Activity is the envelope for a content event sent between pods.
// Activities are immutable once signed.
type Activity struct {
	Context   []string   `json:"@context"`
	Type      string     `json:"type"`
	ID        string     `json:"id"`
	Actor     string     `json:"actor"`
	To        []string   `json:"to"`
	Object    any        `json:"object"`
	Target    string     `json:"target,omitempty"`
	Signature *Signature `json:"signature,omitempty"`
}

// A Signature asserts that the activity's actor produced the envelope.
type Signature struct {
	Type           string `json:"type"`
	Creator        string `json:"creator"`
	Created        string `json:"created"`
	SignatureValue string `json:"signatureValue"`
}

// A SignedActivity carries the envelope together with its wire bytes. Wire
// is what must be delivered, byte for byte: re-encoding the envelope
// elsewhere would not be covered by the signature.
type SignedActivity struct {
	Activity
	Wire []byte
}

func activityContext() []string {
	return []string{
		"https://www.w3.org/ns/activitystreams",
		"https://w3id.org/security/v1",
	}
}

// A Builder constructs signed activities on behalf of local accounts.
type Builder struct {
	db *gorm.DB
}

func NewBuilder(db *gorm.DB) *Builder {
	return &Builder{db: db}
}

// Create builds a signed Create activity for the object at url, addressed
// to the actor's followers.
func (b *Builder) Create(url string, actor *models.Account, object any) (*SignedActivity, error) {
	to, err := b.publicAudience(actor)
	if err != nil {
		return nil, err
	}
	return b.build(CreateType, url, actor, to, object, "")
}

// Update builds a signed Update activity for the object at url.
func (b *Builder) Update(url string, actor *models.Account, object any) (*SignedActivity, error) {
	to, err := b.publicAudience(actor)
	if err != nil {
		return nil, err
	}
	return b.build(UpdateType, url, actor, to, object, "")
}

// Delete builds a signed Delete activity for the object at url.
func (b *Builder) Delete(url string, actor *models.Account, object any) (*SignedActivity, error) {
	to, err := b.publicAudience(actor)
	if err != nil {
		return nil, err
	}
	return b.build(DeleteType, url, actor, to, object, "")
}

// Add builds a signed Add activity inserting the object at url into target.
func (b *Builder) Add(url string, actor *models.Account, target string, object any) (*SignedActivity, error) {
	to, err := b.publicAudience(actor)
	if err != nil {
		return nil, err
	}
	return b.build(AddType, url, actor, to, object, target)
}

// Follow builds a signed Follow activity from actor to target, addressed
// to the target alone.
func (b *Builder) Follow(actor, target *models.Account) (*SignedActivity, error) {
	id := actor.URL + "/follows/" + uuid.New().String()
	return b.build(FollowType, id, actor, []string{target.URL}, target.URL, "")
}

// Accept builds a signed Accept activity answering a follow request.
func (b *Builder) Accept(actor, follower *models.Account, followActivity any) (*SignedActivity, error) {
	id := actor.URL + "/accepts/" + uuid.New().String()
	return b.build(AcceptType, id, actor, []string{follower.URL}, followActivity, "")
}

// publicAudience returns the deduplicated shared inboxes of the actor's
// followers plus the public sentinel.
func (b *Builder) publicAudience(actor *models.Account) ([]string, error) {
	inboxes, err := models.NewAccounts(b.db).FollowerInboxes(actor)
	if err != nil {
		return nil, err
	}
	return append(algorithms.Uniq(inboxes), PublicAudience), nil
}

// build assembles, frames and signs the activity. The signature covers the
// envelope exactly as serialized by this encoder; Wire is the same
// serialization with only the signature attached, and is what peers
// receive. An actor without a private key cannot build activities.
func (b *Builder) build(typ, id string, actor *models.Account, to []string, object any, target string) (*SignedActivity, error) {
	priv, err := actor.PrivKey()
	if err != nil {
		return nil, fmt.Errorf("build %s activity: %w", typ, err)
	}

	activity := Activity{
		Context: activityContext(),
		Type:    typ,
		ID:      id,
		Actor:   actor.URL,
		To:      to,
		Object:  object,
		Target:  target,
	}

	unsigned, err := json.Marshal(&activity)
	if err != nil {
		return nil, err
	}
	hashed := sha256.Sum256(unsigned)
	sig, err := rsa.SignPKCS1v15(rand.Reader, priv, crypto.SHA256, hashed[:])
	if err != nil {
		return nil, fmt.Errorf("sign %s activity %s: %w", typ, id, err)
	}
	activity.Signature = &Signature{
		Type:           "RsaSignature2017",
		Creator:        actor.PublicKeyID(),
		Created:        time.Now().UTC().Format(time.RFC3339),
		SignatureValue: base64.StdEncoding.EncodeToString(sig),
	}

	wire, err := json.Marshal(&activity)
	if err != nil {
		return nil, err
	}
	return &SignedActivity{Activity: activity, Wire: wire}, nil
}
