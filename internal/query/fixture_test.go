package query

func testSchema() *Schema {
	return MustSchema(
		NewEntity("driver", "Driver", "drivers",
			Attr("firstName", "first_name", TypeString),
			Attr("lastName", "last_name", TypeString),
		),
		NewEntity("vehicle", "Vehicle", "vehicles",
			Ref("driver", "driver_id", "driver"),
			Attr("gosNumber", "gos_number", TypeString),
			Attr("tonnageInTons", "tonnage_in_tons", TypeFloat),
		),
		NewEntity("order", "Order", "orders",
			Attr("goodsType", "goods_type", TypeString),
		),
		NewEntity("retailPoint", "RetailPoint", "retail_points",
			Attr("name", "name", TypeString),
			EnumAttr("type", "type", "SHOP", "WAREHOUSE", "GARAGE"),
			Field{Name: "location", Kind: Scalar, Type: TypeGeometry},
		),
		NewEntity("route", "Route", "routes",
			Ref("vehicle", "vehicle_id", "vehicle"),
			HasMany("routePoints", "routePoint", "route_id"),
			Attr("plannedStartTime", "planned_start_time", TypeTime),
			Attr("mileageInKm", "mileage_in_km", TypeFloat),
		),
		NewEntity("routePoint", "RoutePoint", "route_points",
			Ref("route", "route_id", "route"),
			Ref("retailPoint", "retail_point_id", "retailPoint"),
			EnumAttr("operationType", "operation_type", "LOAD", "UNLOAD", "VISIT"),
			ManyToMany("orders", "order", "route_point_orders", "route_point_id", "order_id"),
			Attr("orderNumber", "order_number", TypeInt),
		),
	)
}
