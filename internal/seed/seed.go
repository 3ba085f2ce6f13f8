// Package seed loads a YAML dataset through the services, so seeded data
// passes the same validation and emits the same change events as API writes.
//
// Entities reference each other by the symbolic keys given in the file:
//
//	drivers:
//	  - key: ivan
//	    firstName: Ivan
//	    lastName: Petrov
//	    passport: "1234 567890"
//	vehicles:
//	  - key: truck
//	    driver: ivan
//	    gosNumber: A001AA
//	    ...
//	routes:
//	  - vehicle: truck
//	    routePoints:
//	      - retailPoint: depot
//	        orders: [milk]
//	        ...
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	yaml "gopkg.in/yaml.v3"

	"fleetops/internal/model"
	"fleetops/internal/service"
)

type Dataset struct {
	Drivers      []Driver      `yaml:"drivers"`
	Vehicles     []Vehicle     `yaml:"vehicles"`
	Orders       []Order       `yaml:"orders"`
	RetailPoints []RetailPoint `yaml:"retailPoints"`
	Routes       []Route       `yaml:"routes"`
}

type Driver struct {
	Key            string `yaml:"key"`
	model.DriverIn `yaml:",inline"`
}

type Vehicle struct {
	Key    string `yaml:"key"`
	Driver string `yaml:"driver"`

	GosNumber               string  `yaml:"gosNumber"`
	TonnageInTons           float64 `yaml:"tonnageInTons"`
	BodyHeightInMeters      float64 `yaml:"bodyHeightInMeters"`
	BodyWidthInMeters       float64 `yaml:"bodyWidthInMeters"`
	BodyLengthInCubicMeters float64 `yaml:"bodyLengthInCubicMeters"`
}

type Order struct {
	Key           string `yaml:"key"`
	model.OrderIn `yaml:",inline"`
}

type RetailPoint struct {
	Key                 string `yaml:"key"`
	model.RetailPointIn `yaml:",inline"`
}

type Route struct {
	Vehicle          string          `yaml:"vehicle"`
	MileageInKm      float64         `yaml:"mileageInKm"`
	PlannedStartTime model.Timestamp `yaml:"plannedStartTime"`
	PlannedEndTime   model.Timestamp `yaml:"plannedEndTime"`
	RoutePoints      []RoutePoint    `yaml:"routePoints"`
}

type RoutePoint struct {
	RetailPoint      string              `yaml:"retailPoint"`
	OperationType    model.OperationType `yaml:"operationType"`
	Orders           []string            `yaml:"orders"`
	PlannedStartTime model.Timestamp     `yaml:"plannedStartTime"`
	PlannedEndTime   model.Timestamp     `yaml:"plannedEndTime"`
}

// Result counts the entities created per type.
type Result struct {
	Drivers, Vehicles, Orders, RetailPoints, Routes int
}

// Parse decodes a dataset. Unknown fields are rejected.
func Parse(r io.Reader) (Dataset, error) {
	var ds Dataset
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&ds); err != nil && !errors.Is(err, io.EOF) {
		return Dataset{}, fmt.Errorf("parse seed: %w", err)
	}
	return ds, nil
}

// LoadFile parses path and applies it.
func LoadFile(ctx context.Context, svc *service.Service, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	ds, err := Parse(f)
	if err != nil {
		return Result{}, err
	}
	return Apply(ctx, svc, ds)
}

// Apply creates the dataset in dependency order. Each entity is its own
// transaction; on error the entities created so far remain.
func Apply(ctx context.Context, svc *service.Service, ds Dataset) (Result, error) {
	var res Result
	drivers := keys{kind: "driver"}
	for _, d := range ds.Drivers {
		out, err := svc.Drivers.Create(ctx, d.DriverIn)
		if err != nil {
			return res, fmt.Errorf("driver %q: %w", d.Key, err)
		}
		if err := drivers.put(d.Key, out.ID); err != nil {
			return res, err
		}
		res.Drivers++
	}

	vehicles := keys{kind: "vehicle"}
	for _, v := range ds.Vehicles {
		driverID, err := drivers.get(v.Driver)
		if err != nil {
			return res, fmt.Errorf("vehicle %q: %w", v.Key, err)
		}
		out, err := svc.Vehicles.Create(ctx, model.VehicleIn{
			DriverID:                driverID,
			GosNumber:               v.GosNumber,
			TonnageInTons:           v.TonnageInTons,
			BodyHeightInMeters:      v.BodyHeightInMeters,
			BodyWidthInMeters:       v.BodyWidthInMeters,
			BodyLengthInCubicMeters: v.BodyLengthInCubicMeters,
		})
		if err != nil {
			return res, fmt.Errorf("vehicle %q: %w", v.Key, err)
		}
		if err := vehicles.put(v.Key, out.ID); err != nil {
			return res, err
		}
		res.Vehicles++
	}

	orders := keys{kind: "order"}
	for _, o := range ds.Orders {
		out, err := svc.Orders.Create(ctx, o.OrderIn)
		if err != nil {
			return res, fmt.Errorf("order %q: %w", o.Key, err)
		}
		if err := orders.put(o.Key, out.ID); err != nil {
			return res, err
		}
		res.Orders++
	}

	retail := keys{kind: "retail point"}
	for _, rp := range ds.RetailPoints {
		out, err := svc.RetailPoints.Create(ctx, rp.RetailPointIn)
		if err != nil {
			return res, fmt.Errorf("retail point %q: %w", rp.Key, err)
		}
		if err := retail.put(rp.Key, out.ID); err != nil {
			return res, err
		}
		res.RetailPoints++
	}

	for i, r := range ds.Routes {
		in, err := routeIn(r, vehicles, retail, orders)
		if err != nil {
			return res, fmt.Errorf("route #%d: %w", i, err)
		}
		if _, err := svc.Routes.Create(ctx, in); err != nil {
			return res, fmt.Errorf("route #%d: %w", i, err)
		}
		res.Routes++
	}
	return res, nil
}

func routeIn(r Route, vehicles, retail, orders keys) (model.RouteIn, error) {
	vehicleID, err := vehicles.get(r.Vehicle)
	if err != nil {
		return model.RouteIn{}, err
	}
	in := model.RouteIn{
		VehicleID:        vehicleID,
		MileageInKm:      r.MileageInKm,
		PlannedStartTime: r.PlannedStartTime,
		PlannedEndTime:   r.PlannedEndTime,
		RoutePoints:      make([]model.RoutePointIn, 0, len(r.RoutePoints)),
	}
	for _, p := range r.RoutePoints {
		rpID, err := retail.get(p.RetailPoint)
		if err != nil {
			return model.RouteIn{}, err
		}
		ids := make([]int64, 0, len(p.Orders))
		for _, key := range p.Orders {
			id, err := orders.get(key)
			if err != nil {
				return model.RouteIn{}, err
			}
			ids = append(ids, id)
		}
		in.RoutePoints = append(in.RoutePoints, model.RoutePointIn{
			RetailPointID:    rpID,
			OperationType:    p.OperationType,
			OrderIDs:         ids,
			PlannedStartTime: p.PlannedStartTime,
			PlannedEndTime:   p.PlannedEndTime,
		})
	}
	return in, nil
}

// keys maps symbolic keys of one entity type to stored ids.
type keys struct {
	kind string
	ids  map[string]int64
}

func (k *keys) put(key string, id int64) error {
	if key == "" {
		return nil
	}
	if k.ids == nil {
		k.ids = map[string]int64{}
	}
	if _, dup := k.ids[key]; dup {
		return fmt.Errorf("duplicate %s key %q", k.kind, key)
	}
	k.ids[key] = id
	return nil
}

func (k *keys) get(key string) (int64, error) {
	id, ok := k.ids[key]
	if !ok {
		return 0, fmt.Errorf("unknown %s %q", k.kind, key)
	}
	return id, nil
}
