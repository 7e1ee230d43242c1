package projector

/*
 Copyright 2019 - 2025 Crunchy Data Solutions, Inc.
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at
      http://www.apache.org/licenses/LICENSE-2.0
 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

import (
	"math"
	"testing"
)

func TestProjectInvProjectRoundTrip(t *testing.T) {
	p := New()

	points := [][2]float64{
		{-123.0, 35.0},
		{-122.5, 36.2},
		{-121.8, 34.1},
		{-123.9, 35.9},
	}

	for _, pt := range points {
		lon, lat := pt[0], pt[1]
		x, y, ok := p.Project(lon, lat)
		if !ok {
			t.Fatalf("Project(%v, %v) not ok", lon, lat)
		}
		gotLon, gotLat, ok := p.InvProject(x, y)
		if !ok {
			t.Fatalf("InvProject(%v, %v) not ok", x, y)
		}

		if relErr(gotLon, lon) > 1e-6 {
			t.Errorf("lon round-trip: got %v want %v (relerr %v)", gotLon, lon, relErr(gotLon, lon))
		}
		if relErr(gotLat, lat) > 1e-6 {
			t.Errorf("lat round-trip: got %v want %v (relerr %v)", gotLat, lat, relErr(gotLat, lat))
		}
	}
}

func TestProjectOutOfDomain(t *testing.T) {
	p := New()
	if _, _, ok := p.Project(-170.0, 35.0); ok {
		t.Errorf("expected Project to fail far outside the central meridian")
	}
}

func relErr(got, want float64) float64 {
	if want == 0 {
		return math.Abs(got)
	}
	return math.Abs((got - want) / want)
}
