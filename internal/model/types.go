package model

import "time"

// Entity names used by the filter schema and change events.
const (
	EntityDriver      = "driver"
	EntityVehicle     = "vehicle"
	EntityOrder       = "order"
	EntityRetailPoint = "retailPoint"
	EntityRoute       = "route"
	EntityRoutePoint  = "routePoint"
)

type PointType string

const (
	PointShop      PointType = "SHOP"
	PointWarehouse PointType = "WAREHOUSE"
	PointGarage    PointType = "GARAGE"
)

var PointTypes = []string{string(PointShop), string(PointWarehouse), string(PointGarage)}

type OperationType string

const (
	OperationLoad   OperationType = "LOAD"
	OperationUnload OperationType = "UNLOAD"
	OperationVisit  OperationType = "VISIT"
)

var OperationTypes = []string{string(OperationLoad), string(OperationUnload), string(OperationVisit)}

func isOneOf(v string, set []string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// GeoPoint is a WGS84 position.
type GeoPoint struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lng float64 `json:"longitude" yaml:"longitude"`
}

// Stored entities. References are held by id.

type Driver struct {
	ID         int64   `json:"id"`
	FirstName  string  `json:"firstName"`
	MiddleName *string `json:"middleName"`
	LastName   string  `json:"lastName"`
	Passport   string  `json:"passport"`
}

type Vehicle struct {
	ID                      int64   `json:"id"`
	DriverID                int64   `json:"-"`
	GosNumber               string  `json:"gosNumber"`
	TonnageInTons           float64 `json:"tonnageInTons"`
	BodyHeightInMeters      float64 `json:"bodyHeightInMeters"`
	BodyWidthInMeters       float64 `json:"bodyWidthInMeters"`
	BodyLengthInCubicMeters float64 `json:"bodyLengthInCubicMeters"`
}

type Order struct {
	ID                  int64   `json:"id"`
	GoodsType           string  `json:"goodsType"`
	MinTemperature      *int    `json:"minTemperature"`
	MaxTemperature      *int    `json:"maxTemperature"`
	VolumeInCubicMeters float64 `json:"volumeInCubicMeters"`
	WeightInKg          float64 `json:"weightInKg"`
}

type RetailPoint struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Location GeoPoint  `json:"location"`
	Type     PointType `json:"type"`
	Timezone string    `json:"timezone"`
}

// Route is the aggregate root owning its ordered route points. VehicleID is
// zero for fallback routes created without a vehicle.
type Route struct {
	ID               int64
	VehicleID        int64
	CreationTime     time.Time
	PlannedStartTime time.Time
	PlannedEndTime   time.Time
	MileageInKm      float64
	Points           []RoutePoint
}

// RoutePoint belongs to exactly one route; RouteID is a back-reference only.
type RoutePoint struct {
	ID               int64
	RouteID          int64
	RetailPointID    int64
	OperationType    OperationType
	OrderIDs         []int64
	PlannedStartTime time.Time
	PlannedEndTime   time.Time
	OrderNumber      int
}

// Read models for API responses

type VehicleView struct {
	Vehicle
	Driver Driver `json:"driver"`
}

type RoutePointView struct {
	ID               int64         `json:"id"`
	RouteID          int64         `json:"routeId"`
	RetailPoint      RetailPoint   `json:"retailPoint"`
	OperationType    OperationType `json:"operationType"`
	Orders           []Order       `json:"orders"`
	PlannedStartTime time.Time     `json:"plannedStartTime"`
	PlannedEndTime   time.Time     `json:"plannedEndTime"`
	OrderNumber      int           `json:"orderNumber"`
}

type RouteView struct {
	ID               int64            `json:"id"`
	RoutePoints      []RoutePointView `json:"routePoints"`
	Vehicle          *VehicleView     `json:"vehicle"`
	CreationTime     time.Time        `json:"creationTime"`
	PlannedStartTime time.Time        `json:"plannedStartTime"`
	PlannedEndTime   time.Time        `json:"plannedEndTime"`
	MileageInKm      float64          `json:"mileageInKm"`
}

// RetailPointVisits is one row of the top retail points report.
type RetailPointVisits struct {
	RetailPoint RetailPoint `json:"retailPoint"`
	Visits      int64       `json:"visits"`
}

// Page is one slice of a filtered, sorted listing.
type Page[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"totalItems"`
	TotalPages int   `json:"totalPages"`
}

// NewPage computes TotalPages from total and size.
func NewPage[T any](items []T, page, size int, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return Page[T]{Items: items, Page: page, Size: size, TotalItems: total, TotalPages: pages}
}

// MapPage converts the items of a page, keeping its counters.
func MapPage[T, U any](p Page[T], fn func(T) U) Page[U] {
	out := make([]U, len(p.Items))
	for i, it := range p.Items {
		out[i] = fn(it)
	}
	return Page[U]{Items: out, Page: p.Page, Size: p.Size, TotalItems: p.TotalItems, TotalPages: p.TotalPages}
}
