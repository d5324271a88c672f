package workers

import (
	"context"
	"fmt"

	"github.com/go-json-experiment/json"
	"golang.org/x/exp/slog"

	"github.com/vidpod/vidpod/internal/activitypub"
	"github.com/vidpod/vidpod/models"
)

// DeliveryPayload is the payload of an activity broadcast job: the wire
// bytes of a signed activity and the inboxes to deliver them to.
type DeliveryPayload struct {
	URIs []string      `json:"uris"`
	Body json.RawValue `json:"body"`
}

// DeliveryHandler delivers a signed activity to a list of peer inboxes.
//
// Delivery is sequential and all-or-nothing per attempt: the first failed
// POST fails the whole attempt, and the scheduler's retry re-posts to every
// destination, including ones that already succeeded. That makes delivery
// at-least-once; receivers deduplicate on the activity id.
type DeliveryHandler struct {
	env    *models.Env
	client *activitypub.Client
}

func NewDeliveryHandler(env *models.Env, client *activitypub.Client) *DeliveryHandler {
	return &DeliveryHandler{
		env:    env,
		client: client,
	}
}

func (h *DeliveryHandler) Process(ctx context.Context, job *models.Job) error {
	var payload DeliveryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("job %d: decode payload: %w", job.ID, err)
	}
	for _, uri := range payload.URIs {
		if err := h.client.Post(ctx, uri, payload.Body); err != nil {
			return fmt.Errorf("deliver to %s: %w", uri, err)
		}
		h.env.Log().Debug("delivered activity", slog.Uint64("job_id", uint64(job.ID)), slog.String("uri", uri))
	}
	return nil
}
