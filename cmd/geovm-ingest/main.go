// Command geovm-ingest reads a columnar grid file via DuckDB and
// inserts each row as a leaf node into a new OctreeStore. This is the
// module's only DuckDB-backed site: the query and averaging core paths
// never touch SQL.
package main

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
	"database/sql"
	"fmt"
	"os"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/pborman/getopt/v2"
	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/conf"
	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/payload"
	"github.com/cencalvm/geovm/internal/status"
	"github.com/cencalvm/geovm/internal/store"
)

var (
	flagHelp           bool
	flagVersion        bool
	flagDebugOn        bool
	flagConfigFilename string
	flagInput          string
	flagDestination    string
	flagLevel          uint
	flagLog            string
	flagCacheMB        int = 64
)

func init() {
	getopt.FlagLong(&flagHelp, "help", '?', "Show command usage")
	getopt.FlagLong(&flagConfigFilename, "config", 'c', "config file name")
	getopt.FlagLong(&flagDebugOn, "debug", 'd', "Set logging level to TRACE")
	getopt.FlagLong(&flagVersion, "version", 'v', "Output the version information")
	getopt.FlagLong(&flagInput, "input", 0, "Path to a CSV grid file with a header row")
	getopt.FlagLong(&flagDestination, "destination", 0, "Path to create the OctreeStore database")
	getopt.FlagLong(&flagLevel, "level", 0, "Octree level every grid row is inserted as a leaf at")
	getopt.FlagLong(&flagLog, "log", 0, "Path to an append-only status log")
	getopt.FlagLong(&flagCacheMB, "cache-mb", 0, "Page cache budget in megabytes")
}

// gridQuery selects the columns of the expected grid schema:
// lon, lat, elev, vp, vs, density, qp, qs, depthfreesurf, faultblock, zone.
const gridQuery = `
SELECT lon, lat, elev, vp, vs, density, qp, qs, depthfreesurf, faultblock, zone
FROM read_csv_auto(?)
`

func main() {
	getopt.Parse()

	if flagHelp {
		getopt.Usage()
		os.Exit(1)
	}
	if flagVersion {
		fmt.Printf("%s %s\n", conf.AppConfig.Name, conf.AppConfig.Version)
		os.Exit(1)
	}

	conf.InitConfig(flagConfigFilename, flagDebugOn)
	if flagDebugOn || conf.Configuration.Log.Debug {
		log.SetLevel(log.TraceLevel)
	}

	if flagInput == "" || flagDestination == "" {
		fmt.Fprintln(os.Stderr, "geovm-ingest: --input and --destination are required")
		getopt.Usage()
		os.Exit(1)
	}
	if flagLevel > geometry.MaxLevel {
		log.Fatalf("geovm-ingest: --level %d exceeds the deepest representable level %d", flagLevel, geometry.MaxLevel)
	}

	st := status.New()
	if flagLog != "" {
		if err := st.SetLogFilename(flagLog); err != nil {
			log.Fatalf("geovm-ingest: set log filename: %v", err)
		}
		defer st.Close()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		log.Fatalf("geovm-ingest: open duckdb: %v", err)
	}
	defer db.Close()

	geom := geometry.New()
	dst, err := store.Create(flagDestination, geom.Metadata(), map[string]string{"source": flagInput}, store.Config{CacheMB: flagCacheMB, Status: st})
	if err != nil {
		log.Fatalf("geovm-ingest: create destination: %v", err)
	}
	defer dst.Close()

	n, err := ingest(db, geom, dst, flagInput, uint8(flagLevel))
	if err != nil {
		log.Fatalf("geovm-ingest: %v", err)
	}

	log.Infof("ingested %d leaves into %s at level %d", n, flagDestination, flagLevel)
	if st.IsError() {
		os.Exit(1)
	}
}

func ingest(db *sql.DB, geom geometry.Geometry, dst *store.Store, input string, level uint8) (int, error) {
	rows, err := db.Query(gridQuery, input)
	if err != nil {
		return 0, fmt.Errorf("query grid file: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var lon, lat, elev float64
		var vp, vs, density, qp, qs, depthFreeSurf float64
		var faultBlock, zone int64

		if err := rows.Scan(&lon, &lat, &elev, &vp, &vs, &density, &qp, &qs, &depthFreeSurf, &faultBlock, &zone); err != nil {
			return n, fmt.Errorf("scan row %d: %w", n, err)
		}

		addr, err := geom.LonLatElevToAddr(lon, lat, elev, level)
		if err != nil {
			return n, fmt.Errorf("row %d: %w", n, err)
		}

		rec := payload.Record{
			Vp:            float32(vp),
			Vs:            float32(vs),
			Density:       float32(density),
			Qp:            float32(qp),
			Qs:            float32(qs),
			DepthFreeSurf: float32(depthFreeSurf),
			FaultBlock:    int16(faultBlock),
			Zone:          int16(zone),
		}
		if err := dst.Insert(addr, rec); err != nil {
			return n, fmt.Errorf("row %d: %w", n, err)
		}
		n++
	}
	return n, rows.Err()
}
