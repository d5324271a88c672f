package activitypub

import (
	"gorm.io/gorm"

	"github.com/vidpod/vidpod/internal/algorithms"
	"github.com/vidpod/vidpod/models"
	"github.com/vidpod/vidpod/workers"
)

// Broadcastable is implemented by domain objects, such as videos and
// channels, whose changes are announced to the owning account's followers.
type Broadcastable interface {
	// ActivityURL is the object's URL, used as the activity id.
	ActivityURL() string
	// ActivityObject is the object's ChannelPub representation.
	ActivityObject() any
}

// SendCreate announces the creation of obj to actor's followers. The
// delivery job is created inside tx, so nothing is announced unless the
// creation itself commits.
func SendCreate(tx *gorm.DB, actor *models.Account, obj Broadcastable) (*models.Job, error) {
	activity, err := NewBuilder(tx).Create(obj.ActivityURL(), actor, obj.ActivityObject())
	if err != nil {
		return nil, err
	}
	return broadcastToFollowers(tx, activity)
}

// SendUpdate announces a change to obj to actor's followers.
func SendUpdate(tx *gorm.DB, actor *models.Account, obj Broadcastable) (*models.Job, error) {
	activity, err := NewBuilder(tx).Update(obj.ActivityURL(), actor, obj.ActivityObject())
	if err != nil {
		return nil, err
	}
	return broadcastToFollowers(tx, activity)
}

// SendDelete announces the removal of obj to actor's followers.
func SendDelete(tx *gorm.DB, actor *models.Account, obj Broadcastable) (*models.Job, error) {
	activity, err := NewBuilder(tx).Delete(obj.ActivityURL(), actor, obj.ActivityObject())
	if err != nil {
		return nil, err
	}
	return broadcastToFollowers(tx, activity)
}

// SendAdd announces the insertion of obj into the collection at target,
// typically a video added to a channel.
func SendAdd(tx *gorm.DB, actor *models.Account, target string, obj Broadcastable) (*models.Job, error) {
	activity, err := NewBuilder(tx).Add(obj.ActivityURL(), actor, target, obj.ActivityObject())
	if err != nil {
		return nil, err
	}
	return broadcastToFollowers(tx, activity)
}

// broadcastToFollowers enqueues delivery of the activity to every concrete
// inbox it is addressed to. The public sentinel is an addressing marker,
// not an endpoint.
func broadcastToFollowers(tx *gorm.DB, activity *SignedActivity) (*models.Job, error) {
	uris := algorithms.Filter(activity.To, func(to string) bool {
		return to != PublicAudience
	})
	return models.NewJobs(tx).Enqueue(tx, models.JobKindActivityBroadcast, workers.DeliveryPayload{
		URIs: uris,
		Body: activity.Wire,
	})
}

// sendFollow enqueues delivery of a signed Follow activity to the target's
// inbox, inside the caller's transaction.
func sendFollow(tx *gorm.DB, from, target *models.Account) (*models.Job, error) {
	activity, err := NewBuilder(tx).Follow(from, target)
	if err != nil {
		return nil, err
	}
	return models.NewJobs(tx).Enqueue(tx, models.JobKindActivityBroadcast, deliveryTo(target, activity))
}

// deliveryTo builds a broadcast payload addressed to a single account.
func deliveryTo(target *models.Account, activity *SignedActivity) workers.DeliveryPayload {
	return workers.DeliveryPayload{
		URIs: []string{target.Inbox()},
		Body: activity.Wire,
	}
}
