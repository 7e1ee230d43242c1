// Command geovm-average builds a new OctreeStore containing computed
// interior nodes from an existing leaves-only source store, via a
// bottom-up aggregation pass.
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
	"fmt"
	"os"

	"github.com/pborman/getopt/v2"
	log "github.com/sirupsen/logrus"

	"github.com/cencalvm/geovm/internal/averager"
	"github.com/cencalvm/geovm/internal/conf"
	"github.com/cencalvm/geovm/internal/geometry"
	"github.com/cencalvm/geovm/internal/status"
	"github.com/cencalvm/geovm/internal/store"
)

var (
	flagHelp           bool
	flagVersion        bool
	flagDebugOn        bool
	flagConfigFilename string
	flagSource         string
	flagDestination    string
	flagLog            string
	flagCacheMB        int = 64
)

func init() {
	getopt.FlagLong(&flagHelp, "help", '?', "Show command usage")
	getopt.FlagLong(&flagConfigFilename, "config", 'c', "config file name")
	getopt.FlagLong(&flagDebugOn, "debug", 'd', "Set logging level to TRACE")
	getopt.FlagLong(&flagVersion, "version", 'v', "Output the version information")
	getopt.FlagLong(&flagSource, "source", 0, "Path to the leaves-only source OctreeStore")
	getopt.FlagLong(&flagDestination, "destination", 0, "Path to write the averaged OctreeStore")
	getopt.FlagLong(&flagLog, "log", 0, "Path to an append-only status log")
	getopt.FlagLong(&flagCacheMB, "cache-mb", 0, "Page cache budget in megabytes")
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
	if flagDebugOn || conf.Configuration.Log.Debug {
		log.SetLevel(log.TraceLevel)
	}

	if flagSource == "" || flagDestination == "" {
		fmt.Fprintln(os.Stderr, "geovm-average: --source and --destination are required")
		getopt.Usage()
		os.Exit(1)
	}

	st := status.New()
	if flagLog != "" {
		if err := st.SetLogFilename(flagLog); err != nil {
			log.Fatalf("geovm-average: set log filename: %v", err)
		}
		defer st.Close()
	}

	src, err := store.Open(flagSource, store.Config{CacheMB: flagCacheMB, Status: st})
	if err != nil {
		log.Fatalf("geovm-average: open source: %v", err)
	}
	defer src.Close()

	dst, err := store.Create(flagDestination, src.Metadata(), src.UserMetadata(), store.Config{CacheMB: flagCacheMB, Status: st})
	if err != nil {
		log.Fatalf("geovm-average: create destination: %v", err)
	}
	defer dst.Close()

	a := averager.New(st)
	if err := a.Run(src, dst); err != nil {
		log.Fatalf("geovm-average: %v", err)
	}

	log.Infof("averaged %d source leaves into %d total nodes (deepest level %d)", src.Len(), dst.Len(), geometry.MaxLevel)
	if st.IsError() {
		os.Exit(1)
	}
}
