//go:build postgres_integration

package store

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/query"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Ping(t.Context()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// second run must be a no-op
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate again: %v", err)
	}
	err = p.View(t.Context(), func(tx Tx) error {
		page := query.NewPageBuilder(query.DefaultPageConfig()).Build(nil, nil, nil)
		_, err := tx.Routes().List(t.Context(), query.Query{Filter: query.Predicate{Entity: model.EntityRoute}, Page: page})
		if err != nil {
			return err
		}
		_, err = tx.Routes().WithinPeriod(t.Context(), time.Unix(0, 0), time.Now())
		return err
	})
	if err != nil {
		t.Fatalf("View: %v", err)
	}
}

func TestPostgresNearestAntipodal(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	defer p.Close()
	if err := p.Migrate(t.Context()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	rollback := errors.New("rollback")
	suffix := time.Now().UnixNano()
	pts := []model.GeoPoint{
		{Lat: 0.02, Lng: 0},
		{Lat: -0.02, Lng: 180},
		{Lat: 0.02, Lng: 90},
		{Lat: 0.02, Lng: 1},
	}
	err = p.Update(t.Context(), func(tx Tx) error {
		saved := make([]model.RetailPoint, len(pts))
		for i, g := range pts {
			saved[i] = model.RetailPoint{
				Name:     fmt.Sprintf("antipode-%d-%d", suffix, i),
				Address:  fmt.Sprintf("antipode st %d-%d", suffix, i),
				Location: g,
				Type:     model.PointShop,
				Timezone: "UTC",
			}
			if err := tx.RetailPoints().Save(t.Context(), &saved[i]); err != nil {
				return err
			}
		}
		got, err := tx.RetailPoints().Nearest(t.Context(), saved[0], 1000)
		if err != nil {
			return err
		}
		var order []int64
		for _, rp := range got {
			for _, s := range saved[1:] {
				if rp.ID == s.ID {
					order = append(order, rp.ID)
				}
			}
		}
		want := []int64{saved[3].ID, saved[2].ID, saved[1].ID}
		if fmt.Sprint(order) != fmt.Sprint(want) {
			t.Errorf("nearest order %v, want %v", order, want)
		}
		return rollback
	})
	if !errors.Is(err, rollback) {
		t.Fatalf("Update: %v", err)
	}
}
