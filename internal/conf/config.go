package conf

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
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// DatabaseConfig groups the store file paths and cache budget the CLI
// drivers open.
type DatabaseConfig struct {
	Path         string
	ExtendedPath string
	CacheMB      int
}

// QueryConfig groups the VMQuery resolution-mode and squash parameters
// a CLI invocation selects.
type QueryConfig struct {
	Type        string // "MAXRES", "FIXEDRES", "WAVERES"
	Resolution  float64
	Squash      bool
	SquashLimit float64
}

// LogConfig groups the status log sink path and viper/logrus debug level.
type LogConfig struct {
	Path  string
	Debug bool
}

// Config is the full CLI-driver configuration surface. Only `cmd/`
// drivers read this; core library packages (store, averager, vmquery,
// geometry, payload) take every parameter explicitly and never consult
// viper or the environment.
type Config struct {
	Database DatabaseConfig
	Query    QueryConfig
	Log      LogConfig
}

// Configuration is the process-wide configuration populated by InitConfig.
var Configuration Config

func setDefaults() {
	viper.SetDefault("Database.Path", "")
	viper.SetDefault("Database.ExtendedPath", "")
	viper.SetDefault("Database.CacheMB", 64)
	viper.SetDefault("Query.Type", "MAXRES")
	viper.SetDefault("Query.Resolution", 0.0)
	viper.SetDefault("Query.Squash", false)
	viper.SetDefault("Query.SquashLimit", -2000.0)
	viper.SetDefault("Log.Path", "")
	viper.SetDefault("Log.Debug", false)
}

// InitConfig loads configuration from filename (if non-empty), then
// environment variables prefixed with AppConfig.EnvPrefix (env always
// wins over the file), then defaults, and unmarshals the result into
// Configuration. debug forces LogConfig.Debug regardless of file/env.
func InitConfig(filename string, debug bool) {
	setDefaults()

	viper.SetEnvPrefix(AppConfig.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if filename != "" {
		viper.SetConfigFile(filename)
		if err := viper.ReadInConfig(); err != nil {
			log.Warnf("conf: could not read config file %s: %v", filename, err)
		}
	}

	if err := viper.Unmarshal(&Configuration); err != nil {
		log.Errorf("conf: could not unmarshal configuration: %v", err)
	}

	if debug {
		Configuration.Log.Debug = true
	}
}

// DumpConfig logs the effective configuration at info level, for
// startup diagnostics.
func DumpConfig() {
	log.Infof("%s %s configuration:", AppConfig.Name, AppConfig.Version)
	log.Infof("  Database.Path         = %s", Configuration.Database.Path)
	log.Infof("  Database.ExtendedPath = %s", Configuration.Database.ExtendedPath)
	log.Infof("  Database.CacheMB      = %d", Configuration.Database.CacheMB)
	log.Infof("  Query.Type            = %s", Configuration.Query.Type)
	log.Infof("  Query.Resolution      = %g", Configuration.Query.Resolution)
	log.Infof("  Query.Squash          = %v", Configuration.Query.Squash)
	log.Infof("  Query.SquashLimit     = %g", Configuration.Query.SquashLimit)
	log.Infof("  Log.Path              = %s", Configuration.Log.Path)
	log.Infof("  Log.Debug             = %v", Configuration.Log.Debug)
}
