// Package projector implements the Transverse Mercator (WGS84)
// projection used to map the central-California study region onto a
// planar metric coordinate system, and its inverse.
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

import "math"

// WGS84 ellipsoid constants.
const (
	semiMajorAxis = 6378137.0          // a, meters
	flattening    = 1.0 / 298.257223563 // f
)

// Fixed projection parameters for the central-California study area.
// A single meridian/scale/false-origin pair is normative for this
// region: the projection is not parameterized per call.
const (
	centralMeridian = -123.0 // degrees, roughly the region's longitudinal center
	originLatitude  = 35.0   // degrees, roughly the region's latitudinal center
	scaleFactor     = 0.9996
	falseEasting    = 500000.0
	falseNorthing   = 0.0
)

// Projector implements forward and inverse Transverse Mercator
// projection fixed to the central-California parameters above.
type Projector struct {
	a  float64
	e2 float64 // first eccentricity squared
	ep2 float64 // second eccentricity squared
	k0 float64
	lon0 float64 // radians
	lat0 float64 // radians
	fe float64
	fn float64
}

// New returns a Projector configured with the fixed central-California
// Transverse Mercator parameters.
func New() *Projector {
	e2 := flattening * (2 - flattening)
	return &Projector{
		a:    semiMajorAxis,
		e2:   e2,
		ep2:  e2 / (1 - e2),
		k0:   scaleFactor,
		lon0: centralMeridian * math.Pi / 180,
		lat0: originLatitude * math.Pi / 180,
		fe:   falseEasting,
		fn:   falseNorthing,
	}
}

// meridionalArc returns the true meridional arc length from the
// equator to latitude phi (radians), on the WGS84 ellipsoid.
func (p *Projector) meridionalArc(phi float64) float64 {
	e2 := p.e2
	e4 := e2 * e2
	e6 := e4 * e2
	return p.a * (
		(1-e2/4-3*e4/64-5*e6/256)*phi -
			(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
			(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
			(35*e6/3072)*math.Sin(6*phi))
}

// Project maps (lon, lat) in degrees (WGS84) to planar (x, y) meters.
// Returns ok=false if the point is so far from the central meridian
// that the series expansion used here is no longer numerically
// trustworthy (beyond roughly +/-12 degrees) — the projection's
// "coordinates outside the projection domain" failure case.
func (p *Projector) Project(lon, lat float64) (x, y float64, ok bool) {
	if math.Abs(lon-centralMeridian) > 12 {
		return 0, 0, false
	}

	phi := lat * math.Pi / 180
	lambda := lon*math.Pi/180 - p.lon0

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	nu := p.a / math.Sqrt(1-p.e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := p.ep2 * cosPhi * cosPhi
	aTerm := lambda * cosPhi

	m := p.meridionalArc(phi)
	m0 := p.meridionalArc(p.lat0)

	x = p.k0*nu*(aTerm+
		(1-t+c)*math.Pow(aTerm, 3)/6+
		(5-18*t+t*t+72*c-58*p.ep2)*math.Pow(aTerm, 5)/120) + p.fe

	y = p.k0*(m-m0+
		nu*tanPhi*(math.Pow(aTerm, 2)/2+
			(5-t+9*c+4*c*c)*math.Pow(aTerm, 4)/24+
			(61-58*t+t*t+600*c-330*p.ep2)*math.Pow(aTerm, 6)/720)) + p.fn

	return x, y, true
}

// InvProject maps planar (x, y) meters back to (lon, lat) in degrees
// (WGS84). This is the approximate series inverse of Project; the pair
// round-trips to better than 1e-6 relative error across the study area.
func (p *Projector) InvProject(x, y float64) (lon, lat float64, ok bool) {
	m := (y - p.fn) / p.k0 + p.meridionalArc(p.lat0)

	mu := m / (p.a * (1 - p.e2/4 - 3*p.e2*p.e2/64 - 5*p.e2*p.e2*p.e2/256))

	e1 := (1 - math.Sqrt(1-p.e2)) / (1 + math.Sqrt(1-p.e2))

	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sinPhi1 := math.Sin(phi1)
	cosPhi1 := math.Cos(phi1)
	tanPhi1 := math.Tan(phi1)

	nu1 := p.a / math.Sqrt(1-p.e2*sinPhi1*sinPhi1)
	rho1 := p.a * (1 - p.e2) / math.Pow(1-p.e2*sinPhi1*sinPhi1, 1.5)
	t1 := tanPhi1 * tanPhi1
	c1 := p.ep2 * cosPhi1 * cosPhi1

	d := (x - p.fe) / (nu1 * p.k0)

	lat = phi1 - (nu1*tanPhi1/rho1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*p.ep2)*d*d*d*d/24+
		(61+90*t1+298*c1+45*t1*t1-252*p.ep2-3*c1*c1)*d*d*d*d*d*d/720)

	lon = p.lon0 + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*p.ep2+24*t1*t1)*d*d*d*d*d/120)/cosPhi1

	latDeg := lat * 180 / math.Pi
	lonDeg := lon * 180 / math.Pi
	if math.Abs(lonDeg-centralMeridian) > 12 {
		return 0, 0, false
	}
	return lonDeg, latDeg, true
}
