package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"fleetops/internal/apperr"
	"fleetops/internal/query"
)

// Timestamp accepts RFC 3339 or a zone-less ISO date-time on input.
type Timestamp struct{ time.Time }

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, ok := query.ParseTime(s)
	if !ok {
		return fmt.Errorf("invalid date-time %q", s)
	}
	t.Time = v
	return nil
}

func (t *Timestamp) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" || n.Value == "" {
		t.Time = time.Time{}
		return nil
	}
	v, ok := query.ParseTime(n.Value)
	if !ok {
		return fmt.Errorf("line %d: invalid date-time %q", n.Line, n.Value)
	}
	t.Time = v
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) { return json.Marshal(t.Time) }

// At builds a Timestamp in UTC.
func At(v time.Time) Timestamp { return Timestamp{v.UTC()} }

var (
	humanName = regexp.MustCompile(`^\p{L}+(?:[-'\s]\p{L}+)*$`)
	passport  = regexp.MustCompile(`^\d{4}\s?\d{6}$`)
)

const (
	msgBlank     = "must not be blank"
	msgNull      = "must not be null"
	msgHumanName = "must contain only letters, spaces, apostrophes, or hyphens"
)

// violations collects field errors into one BadRequest.
type violations []string

func (v *violations) add(field, msg string) { *v = append(*v, field+": "+msg) }

func (v violations) err() error {
	if len(v) == 0 {
		return nil
	}
	return apperr.BadRequest("%s", strings.Join(v, "; "))
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func (v *violations) min(field string, x, min float64) {
	if x < min {
		v.add(field, fmt.Sprintf("must be greater than or equal to %g", min))
	}
}

type DriverIn struct {
	FirstName  string  `json:"firstName" yaml:"firstName"`
	MiddleName *string `json:"middleName" yaml:"middleName"`
	LastName   string  `json:"lastName" yaml:"lastName"`
	Passport   string  `json:"passport" yaml:"passport"`
}

func (in DriverIn) Validate() error {
	var v violations
	name := func(field, s string) {
		if blank(s) {
			v.add(field, msgBlank)
		} else if !humanName.MatchString(s) {
			v.add(field, msgHumanName)
		}
	}
	name("firstName", in.FirstName)
	if in.MiddleName != nil && !humanName.MatchString(*in.MiddleName) {
		v.add("middleName", msgHumanName)
	}
	name("lastName", in.LastName)
	if blank(in.Passport) {
		v.add("passport", msgBlank)
	} else if !passport.MatchString(in.Passport) {
		v.add("passport", "must match the '1234 567890' passport format")
	}
	return v.err()
}

type VehicleIn struct {
	DriverID                int64   `json:"driverId" yaml:"driverId"`
	GosNumber               string  `json:"gosNumber" yaml:"gosNumber"`
	TonnageInTons           float64 `json:"tonnageInTons" yaml:"tonnageInTons"`
	BodyHeightInMeters      float64 `json:"bodyHeightInMeters" yaml:"bodyHeightInMeters"`
	BodyWidthInMeters       float64 `json:"bodyWidthInMeters" yaml:"bodyWidthInMeters"`
	BodyLengthInCubicMeters float64 `json:"bodyLengthInCubicMeters" yaml:"bodyLengthInCubicMeters"`
}

func (in VehicleIn) Validate() error {
	var v violations
	if in.DriverID == 0 {
		v.add("driverId", msgNull)
	}
	if blank(in.GosNumber) {
		v.add("gosNumber", msgBlank)
	} else if utf8.RuneCountInString(in.GosNumber) < 2 {
		v.add("gosNumber", "size must be at least 2")
	}
	v.min("tonnageInTons", in.TonnageInTons, 0.01)
	v.min("bodyHeightInMeters", in.BodyHeightInMeters, 0.01)
	v.min("bodyWidthInMeters", in.BodyWidthInMeters, 0.01)
	v.min("bodyLengthInCubicMeters", in.BodyLengthInCubicMeters, 0.01)
	return v.err()
}

type OrderIn struct {
	GoodsType           string  `json:"goodsType" yaml:"goodsType"`
	MinTemperature      *int    `json:"minTemperature" yaml:"minTemperature"`
	MaxTemperature      *int    `json:"maxTemperature" yaml:"maxTemperature"`
	VolumeInCubicMeters float64 `json:"volumeInCubicMeters" yaml:"volumeInCubicMeters"`
	WeightInKg          float64 `json:"weightInKg" yaml:"weightInKg"`
}

func (in OrderIn) Validate() error {
	var v violations
	if blank(in.GoodsType) {
		v.add("goodsType", msgBlank)
	} else if strings.ContainsRune(in.GoodsType, 0) {
		v.add("goodsType", "must not contain null characters")
	}
	temp := func(field string, t *int) {
		switch {
		case t == nil:
			v.add(field, msgNull)
		case *t < -100:
			v.add(field, "must not be lower than -100°C")
		case *t > 200:
			v.add(field, "must not exceed 200°C")
		}
	}
	temp("minTemperature", in.MinTemperature)
	temp("maxTemperature", in.MaxTemperature)
	if in.MinTemperature != nil && in.MaxTemperature != nil && *in.MaxTemperature < *in.MinTemperature {
		v.add("maxTemperature", "max_temperature must be greater than or equal to min_temperature")
	}
	v.min("volumeInCubicMeters", in.VolumeInCubicMeters, 0.001)
	v.min("weightInKg", in.WeightInKg, 0.001)
	return v.err()
}

type RetailPointIn struct {
	Name     string    `json:"name" yaml:"name"`
	Address  string    `json:"address" yaml:"address"`
	Location *GeoPoint `json:"location" yaml:"location"`
	Type     PointType `json:"type" yaml:"type"`
	Timezone string    `json:"timezone" yaml:"timezone"`
}

func (in RetailPointIn) Validate() error {
	var v violations
	if blank(in.Name) {
		v.add("name", msgBlank)
	}
	if blank(in.Address) {
		v.add("address", msgBlank)
	}
	if in.Location == nil {
		v.add("location", msgNull)
	} else {
		if in.Location.Lat < -90 || in.Location.Lat > 90 {
			v.add("location.latitude", "must be between -90 and 90")
		}
		if in.Location.Lng < -180 || in.Location.Lng > 180 {
			v.add("location.longitude", "must be between -180 and 180")
		}
	}
	if !isOneOf(string(in.Type), PointTypes) {
		v.add("type", "must be one of "+strings.Join(PointTypes, ", "))
	}
	if blank(in.Timezone) {
		v.add("timezone", msgBlank)
	} else if !ValidTimezone(in.Timezone) {
		v.add("timezone", "must be a valid timezone identifier")
	}
	return v.err()
}

// ValidTimezone reports whether tz names an IANA zone.
func ValidTimezone(tz string) bool {
	if tz == "Local" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

type RoutePointIn struct {
	ID               *int64        `json:"id" yaml:"id"`
	RouteID          *int64        `json:"routeId" yaml:"routeId"`
	RetailPointID    int64         `json:"retailPointId" yaml:"retailPointId"`
	OperationType    OperationType `json:"operationType" yaml:"operationType"`
	OrderIDs         []int64       `json:"orderIds" yaml:"orderIds"`
	PlannedStartTime Timestamp     `json:"plannedStartTime" yaml:"plannedStartTime"`
	PlannedEndTime   Timestamp     `json:"plannedEndTime" yaml:"plannedEndTime"`
	OrderNumber      *int          `json:"orderNumber" yaml:"orderNumber"`
}

func (in RoutePointIn) Validate() error {
	var v violations
	in.check(&v, "")
	return v.err()
}

func (in RoutePointIn) check(v *violations, prefix string) {
	if in.RetailPointID == 0 {
		v.add(prefix+"retailPointId", msgNull)
	}
	if !isOneOf(string(in.OperationType), OperationTypes) {
		v.add(prefix+"operationType", "must be one of "+strings.Join(OperationTypes, ", "))
	}
	if in.OrderIDs == nil {
		v.add(prefix+"orderIds", msgNull)
	}
	checkPlanned(v, prefix, in.PlannedStartTime, in.PlannedEndTime)
	if in.OrderNumber != nil && *in.OrderNumber < 0 {
		v.add(prefix+"orderNumber", "must be greater than or equal to 0")
	}
}

func checkPlanned(v *violations, prefix string, start, end Timestamp) {
	if start.IsZero() {
		v.add(prefix+"plannedStartTime", msgNull)
	}
	if end.IsZero() {
		v.add(prefix+"plannedEndTime", msgNull)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start.Time) {
		v.add(prefix+"plannedEndTime", "must not be before plannedStartTime")
	}
}

type RouteIn struct {
	RoutePoints      []RoutePointIn `json:"routePoints" yaml:"routePoints"`
	VehicleID        int64          `json:"vehicleId" yaml:"vehicleId"`
	PlannedStartTime Timestamp      `json:"plannedStartTime" yaml:"plannedStartTime"`
	PlannedEndTime   Timestamp      `json:"plannedEndTime" yaml:"plannedEndTime"`
	MileageInKm      float64        `json:"mileageInKm" yaml:"mileageInKm"`
}

func (in RouteIn) Validate() error {
	var v violations
	if in.RoutePoints == nil {
		v.add("routePoints", msgNull)
	}
	for i, p := range in.RoutePoints {
		p.check(&v, fmt.Sprintf("routePoints[%d].", i))
	}
	if in.VehicleID == 0 {
		v.add("vehicleId", msgNull)
	}
	checkPlanned(&v, "", in.PlannedStartTime, in.PlannedEndTime)
	v.min("mileageInKm", in.MileageInKm, 0.001)
	return v.err()
}
