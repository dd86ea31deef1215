package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	classroomLat = 37.0
	classroomLon = -122.0
)

func TestDistanceMetersZeroForSamePoint(t *testing.T) {
	assert.Zero(t, DistanceMeters(classroomLat, classroomLon, classroomLat, classroomLon))
}

func TestDistanceMetersSymmetry(t *testing.T) {
	there := DistanceMeters(classroomLat, classroomLon, 37.001, -122.001)
	back := DistanceMeters(37.001, -122.001, classroomLat, classroomLon)
	assert.InDelta(t, there, back, 1e-9)
}

func TestDistanceMetersKnownOffsets(t *testing.T) {
	// One degree of latitude is roughly 111.19 km on a 6371 km sphere.
	d := DistanceMeters(classroomLat, classroomLon, classroomLat+1, classroomLon)
	assert.InDelta(t, 111195, d, 100)

	// ~0.00045 degrees of latitude is about 50 m.
	near := DistanceMeters(classroomLat, classroomLon, classroomLat+0.00045, classroomLon)
	assert.InDelta(t, 50, near, 1)
}

func TestWithinRadius(t *testing.T) {
	assert.True(t, WithinRadius(49, 50))
	assert.True(t, WithinRadius(50, 50), "boundary distance verifies")
	assert.False(t, WithinRadius(51, 50))
}

func TestGeofenceScenario(t *testing.T) {
	inside := DistanceMeters(classroomLat, classroomLon, classroomLat+0.00040, classroomLon)
	outside := DistanceMeters(classroomLat, classroomLon, classroomLat+0.00055, classroomLon)

	assert.True(t, WithinRadius(inside, 50))
	assert.False(t, WithinRadius(outside, 50))
}
