// Command geovm-query reads a batch of (lon, lat, elev) locations from
// a file and writes, for each, the requested Payload values looked up
// from a central-California VMQuery database.
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

/*
# Running
Usage: ./geovm-query --database /path/to/db.vm --locations points.txt --output results.txt

# Configuration
Database file paths come only from --database and --extended-database.

# Logging
Logging to stderr; optional append-only status log via --log.
*/

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pborman/getopt/v2"
	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/conf"
	"github.com/cencalvm/geovm/internal/status"
	"github.com/cencalvm/geovm/internal/vmquery"
)

var (
	flagHelp             bool
	flagVersion          bool
	flagDebugOn          bool
	flagConfigFilename   string
	flagDatabase         string
	flagExtendedDatabase string
	flagOutput           string
	flagLocations        string
	flagLog              string
	flagQueryType        string  = "maxres"
	flagResolution       float64 = 0.0
	flagCacheMB          int     = 128
	flagSquashLimit      float64 = squashOffSentinel
	flagValues           string  = "Vp,Vs,Density,Qp,Qs,DepthFreeSurf,FaultBlock,Zone,Elevation"
)

// squashOffSentinel is the default --squash-limit value: squash mode is
// off unless the caller supplies a different limit (spec.md §6).
const squashOffSentinel = -1e6

func init() {
	getopt.FlagLong(&flagHelp, "help", '?', "Show command usage")
	getopt.FlagLong(&flagConfigFilename, "config", 'c', "config file name")
	getopt.FlagLong(&flagDebugOn, "debug", 'd', "Set logging level to TRACE")
	getopt.FlagLong(&flagVersion, "version", 'v', "Output the version information")
	getopt.FlagLong(&flagDatabase, "database", 0, "Path to the OctreeStore database file")
	getopt.FlagLong(&flagExtendedDatabase, "extended-database", 0, "Path to the extended-domain fallback database file")
	getopt.FlagLong(&flagOutput, "output", 0, "Path to write query results")
	getopt.FlagLong(&flagLocations, "locations", 0, "Path to a file of whitespace-separated lon lat elev locations, one per line")
	getopt.FlagLong(&flagLog, "log", 0, "Path to an append-only status log")
	getopt.FlagLong(&flagQueryType, "query-type", 0, "maxres, fixedres, or waveres")
	getopt.FlagLong(&flagResolution, "resolution", 0, "FIXEDRES meters or WAVERES minimum period (seconds)")
	getopt.FlagLong(&flagCacheMB, "cache-mb", 0, "Page cache budget in megabytes")
	getopt.FlagLong(&flagSquashLimit, "squash-limit", 0, "Squash-mode elevation floor in meters; default -1e6 means squash is off")
	getopt.FlagLong(&flagValues, "values", 0, "Comma-separated value names to output")
}

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
	if flagDatabase != "" {
		conf.Configuration.Database.Path = flagDatabase
	}
	if flagExtendedDatabase != "" {
		conf.Configuration.Database.ExtendedPath = flagExtendedDatabase
	}
	if flagDebugOn || conf.Configuration.Log.Debug {
		log.SetLevel(log.TraceLevel)
	}
	conf.DumpConfig()

	if flagDatabase == "" || flagLocations == "" || flagOutput == "" {
		fmt.Fprintln(os.Stderr, "geovm-query: --database, --locations, and --output are required")
		getopt.Usage()
		os.Exit(1)
	}

	st := status.New()
	if flagLog != "" {
		if err := st.SetLogFilename(flagLog); err != nil {
			log.Fatalf("geovm-query: set log filename: %v", err)
		}
		defer st.Close()
	}

	mode, err := parseQueryType(flagQueryType)
	if err != nil {
		log.Fatalf("geovm-query: %v", err)
	}

	q := vmquery.New(st)
	if err := q.Configure(vmquery.Config{
		DatabasePath:         flagDatabase,
		ExtendedDatabasePath: flagExtendedDatabase,
		CacheMB:              flagCacheMB,
	}); err != nil {
		log.Fatalf("geovm-query: configure: %v", err)
	}
	if err := q.SetResolutionMode(mode, flagResolution); err != nil {
		log.Fatalf("geovm-query: %v", err)
	}
	q.SetSquash(flagSquashLimit != squashOffSentinel, flagSquashLimit)

	if err := q.Open(); err != nil {
		log.Fatalf("geovm-query: open: %v", err)
	}
	defer q.Close()

	values := strings.Split(flagValues, ",")

	warnings, total, err := runBatch(q, flagLocations, flagOutput, values)
	if err != nil {
		log.Fatalf("geovm-query: %v", err)
	}

	log.Infof("%d of %d queries returned partial data", warnings, total)
	if st.IsError() {
		os.Exit(1)
	}
}

func parseQueryType(s string) (vmquery.ResolutionMode, error) {
	switch strings.ToLower(s) {
	case "maxres", "":
		return vmquery.MaxRes, nil
	case "fixedres":
		return vmquery.FixedRes, nil
	case "waveres":
		return vmquery.WaveRes, nil
	default:
		return 0, fmt.Errorf("unknown --query-type %q", s)
	}
}

// runBatch reads lon,lat,elev triples from locPath and writes one
// fixed-width result line per location to outPath, returning a count
// of WARNING (partial-data) results and the total queried.
func runBatch(q *vmquery.VMQuery, locPath, outPath string, values []string) (warnings, total int, err error) {
	in, err := os.Open(locPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open locations file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return 0, 0, fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	w := bufio.NewWriter(out)
	defer w.Flush()

	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		lon, lat, elev, err := parseLocation(line)
		if err != nil {
			return warnings, total, fmt.Errorf("line %d: %w", lineNo, err)
		}
		total++

		res, err := q.Query(lon, lat, elev)
		if err != nil {
			return warnings, total, fmt.Errorf("line %d: query: %w", lineNo, err)
		}
		if !res.Hit {
			warnings++
		}

		fields := make([]string, 0, len(values))
		for _, name := range values {
			v, err := vmquery.ValueByName(res.Record, float64(res.Elevation), strings.TrimSpace(name))
			if err != nil {
				return warnings, total, fmt.Errorf("line %d: %w", lineNo, err)
			}
			fields = append(fields, fmt.Sprintf("%14.4f", v))
		}
		fmt.Fprintf(w, "%14.6f%14.6f%12.2f%s\n", lon, lat, elev, strings.Join(fields, ""))
	}
	return warnings, total, scanner.Err()
}

// parseLocation parses a "lon lat elev" line of whitespace-separated
// floats (spec.md §6).
func parseLocation(line string) (lon, lat, elev float64, err error) {
	parts := strings.Fields(line)
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("expected lon lat elev, got %q", line)
	}
	lon, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("lon: %w", err)
	}
	lat, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("lat: %w", err)
	}
	elev, err = strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("elev: %w", err)
	}
	return lon, lat, elev, nil
}
