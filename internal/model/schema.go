package model

import "fleetops/internal/query"

// Schema is the filter and sort vocabulary of every entity, keyed by the
// Entity* names. Columns match internal/store/schema.sql.
var Schema = query.MustSchema(
	query.NewEntity(EntityDriver, "Driver", "drivers",
		query.Attr("firstName", "first_name", query.TypeString),
		query.Attr("middleName", "middle_name", query.TypeString),
		query.Attr("lastName", "last_name", query.TypeString),
		query.Attr("passport", "passport", query.TypeString),
	),
	query.NewEntity(EntityVehicle, "Vehicle", "vehicles",
		query.Ref("driver", "driver_id", EntityDriver),
		query.Attr("gosNumber", "gos_number", query.TypeString),
		query.Attr("tonnageInTons", "tonnage_in_tons", query.TypeFloat),
		query.Attr("bodyHeightInMeters", "body_height_in_meters", query.TypeFloat),
		query.Attr("bodyWidthInMeters", "body_width_in_meters", query.TypeFloat),
		query.Attr("bodyLengthInCubicMeters", "body_length_in_cubic_meters", query.TypeFloat),
	),
	query.NewEntity(EntityOrder, "Order", "orders",
		query.Attr("goodsType", "goods_type", query.TypeString),
		query.Attr("minTemperature", "min_temperature", query.TypeInt),
		query.Attr("maxTemperature", "max_temperature", query.TypeInt),
		query.Attr("volumeInCubicMeters", "volume_in_cubic_meters", query.TypeFloat),
		query.Attr("weightInKg", "weight_in_kg", query.TypeFloat),
	),
	query.NewEntity(EntityRetailPoint, "RetailPoint", "retail_points",
		query.Attr("name", "name", query.TypeString),
		query.Attr("address", "address", query.TypeString),
		query.Attr("location", "", query.TypeGeometry),
		query.EnumAttr("type", "type", PointTypes...),
		query.Attr("timezone", "timezone", query.TypeString),
	),
	query.NewEntity(EntityRoute, "Route", "routes",
		query.HasMany("routePoints", EntityRoutePoint, "route_id"),
		query.Ref("vehicle", "vehicle_id", EntityVehicle),
		query.Attr("creationTime", "creation_time", query.TypeTime),
		query.Attr("plannedStartTime", "planned_start_time", query.TypeTime),
		query.Attr("plannedEndTime", "planned_end_time", query.TypeTime),
		query.Attr("mileageInKm", "mileage_in_km", query.TypeFloat),
	),
	query.NewEntity(EntityRoutePoint, "RoutePoint", "route_points",
		query.Ref("route", "route_id", EntityRoute),
		query.Ref("retailPoint", "retail_point_id", EntityRetailPoint),
		query.EnumAttr("operationType", "operation_type", OperationTypes...),
		query.ManyToMany("orders", EntityOrder, "route_point_orders", "route_point_id", "order_id"),
		query.Attr("plannedStartTime", "planned_start_time", query.TypeTime),
		query.Attr("plannedEndTime", "planned_end_time", query.TypeTime),
		query.Attr("orderNumber", "order_number", query.TypeInt),
	),
)
