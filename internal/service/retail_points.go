package service

import (
	"context"

	"fleetops/internal/events"
	"fleetops/internal/model"
	"fleetops/internal/store"
)

// RetailPoints adds the nearest-neighbour lookup to the CRUD flow.
type RetailPoints struct {
	*CRUD[model.RetailPoint, model.RetailPointIn, model.RetailPoint]
}

func newRetailPoints(c *core) *RetailPoints {
	return &RetailPoints{&CRUD[model.RetailPoint, model.RetailPointIn, model.RetailPoint]{
		core: c, entity: model.EntityRetailPoint, label: "RetailPoint", topic: events.TopicRetailPoints,
		read:  func(tx store.Tx) store.Reader[model.RetailPoint] { return tx.RetailPoints() },
		write: func(tx store.Tx) store.Table[model.RetailPoint] { return tx.RetailPoints() },
		id:    func(r model.RetailPoint) int64 { return r.ID },
		apply: func(_ context.Context, _ store.Tx, in model.RetailPointIn, r *model.RetailPoint) error {
			r.Name = in.Name
			r.Address = in.Address
			r.Location = *in.Location
			r.Type = in.Type
			r.Timezone = in.Timezone
			return nil
		},
		views: identity[model.RetailPoint],
	}}
}

// Nearest returns up to limit other retail points ordered by great-circle
// distance from the retail point id, ties broken by ascending id. Limits
// above the configured maximum are capped.
func (s *RetailPoints) Nearest(ctx context.Context, id int64, limit int) ([]model.RetailPoint, error) {
	if err := positiveLimit(limit); err != nil {
		return nil, err
	}
	limit = min(limit, s.maxNearest)
	var out []model.RetailPoint
	err := s.view(ctx, func(tx store.Tx) error {
		origin, err := tx.RetailPoints().Get(ctx, id)
		if err != nil {
			return missing(err, s.label, id)
		}
		out, err = tx.RetailPoints().Nearest(ctx, origin, limit)
		return err
	})
	return out, err
}
