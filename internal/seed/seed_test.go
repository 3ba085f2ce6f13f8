package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/events"
	"fleetops/internal/logging"
	"fleetops/internal/service"
	"fleetops/internal/store"
)

func newService() *service.Service {
	return service.New(store.NewMemory(), events.NewPublisher(events.NewHub(), logging.Nop()), logging.Nop(), service.Options{})
}

func TestLoadDemoDataset(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	res, err := LoadFile(ctx, svc, "testdata/demo.yaml")
	require.NoError(t, err)
	assert.Equal(t, Result{Drivers: 2, Vehicles: 2, Orders: 2, RetailPoints: 3, Routes: 1}, res)

	routes, err := svc.Routes.List(ctx, service.ListParams{})
	require.NoError(t, err)
	require.Len(t, routes.Items, 1)
	r := routes.Items[0]
	require.NotNil(t, r.Vehicle)
	assert.Equal(t, "Petrov", r.Vehicle.Driver.LastName)
	require.Len(t, r.RoutePoints, 3)
	assert.Equal(t, "Central warehouse", r.RoutePoints[0].RetailPoint.Name)
	assert.Len(t, r.RoutePoints[0].Orders, 2)
	assert.Equal(t, 2, r.RoutePoints[2].OrderNumber)

	avg, err := svc.Routes.AverageMileage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42.5, avg)
}

func TestUnknownReference(t *testing.T) {
	ds, err := Parse(strings.NewReader(`
vehicles:
  - key: van
    driver: nobody
    gosNumber: A001AA
    tonnageInTons: 1
    bodyHeightInMeters: 1
    bodyWidthInMeters: 1
    bodyLengthInCubicMeters: 1
`))
	require.NoError(t, err)
	_, err = Apply(context.Background(), newService(), ds)
	assert.EqualError(t, err, `vehicle "van": unknown driver "nobody"`)
}

func TestDuplicateKeyAndUnknownField(t *testing.T) {
	ds, err := Parse(strings.NewReader(`
orders:
  - {key: a, goodsType: x, minTemperature: 0, maxTemperature: 1, volumeInCubicMeters: 1, weightInKg: 1}
  - {key: a, goodsType: y, minTemperature: 0, maxTemperature: 1, volumeInCubicMeters: 1, weightInKg: 1}
`))
	require.NoError(t, err)
	res, err := Apply(context.Background(), newService(), ds)
	assert.EqualError(t, err, `duplicate order key "a"`)
	assert.Equal(t, 1, res.Orders)

	_, err = Parse(strings.NewReader("drivers:\n  - key: x\n    nickname: y\n"))
	assert.Error(t, err)
}

func TestValidationErrorsCarryKey(t *testing.T) {
	ds, err := Parse(strings.NewReader("drivers:\n  - key: bad\n    firstName: Ivan\n"))
	require.NoError(t, err)
	_, err = Apply(context.Background(), newService(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `driver "bad"`)
	assert.Contains(t, err.Error(), "passport")
}
