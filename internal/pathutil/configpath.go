// Package pathutil locates configuration files and writes generated outputs.
package pathutil

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("pathutil")

// ConfigLocationType describes a config path's location type.
type ConfigLocationType string

const (
	// WorkingDirLoc is the working directory location for a configuration file.
	WorkingDirLoc = ConfigLocationType("WD")

	// HomeLoc is the home folder location for a configuration file.
	HomeLoc = ConfigLocationType("HOME")

	// LocalLoc is the /usr/local location for a configuration file.
	LocalLoc = ConfigLocationType("LOCAL")
)

// String implements fmt.Stringer for ConfigLocationType.
func (t ConfigLocationType) String() string {
	return string(t)
}

// ConfigPaths maps location types to candidate configuration paths.
type ConfigPaths map[ConfigLocationType]string

// String implements fmt.Stringer for ConfigPaths.
func (dp ConfigPaths) String() string {
	raw, err := json.MarshalIndent(dp, "", "\t")
	if err != nil {
		log.Fatalf("cannot marshal default paths: %s", err.Error())
	}
	return string(raw)
}

// HomeDir returns the home directory of the current user, or "" if it cannot
// be resolved.
func HomeDir() string {
	home, err := homedir.Dir()
	if err != nil {
		log.WithError(err).Warn("failed to resolve home directory")
		return ""
	}
	return home
}

// Defaults returns the default config paths for a file called name.
func Defaults(name string) ConfigPaths {
	paths := make(ConfigPaths)
	if wd, err := os.Getwd(); err == nil {
		paths[WorkingDirLoc] = filepath.Join(wd, name)
	}
	if home := HomeDir(); home != "" {
		paths[HomeLoc] = filepath.Join(home, ".dlfree", name)
	}
	paths[LocalLoc] = filepath.Join("/usr/local/dlfree", name)
	return paths
}

// FindConfigPath looks for a config file path in the following order:
// - From CLI argument.
// - From ENV.
// - From a list of default paths.
// If argsIndex < 0, searching from CLI arguments does not take place. An empty
// path is returned when nothing is found.
func FindConfigPath(args []string, argsIndex int, env string, defaults ConfigPaths) string {
	if argsIndex >= 0 && len(args) > argsIndex {
		path := args[argsIndex]
		log.Infof("using args[%d] as config path: %s", argsIndex, path)
		return path
	}
	if env != "" {
		if path, ok := os.LookupEnv(env); ok {
			log.Infof("using $%s as config path: %s", env, path)
			return path
		}
	}
	log.Debugf("config path is not explicitly specified, trying default paths...")
	for i, cpType := range []ConfigLocationType{WorkingDirLoc, HomeLoc, LocalLoc} {
		path, ok := defaults[cpType]
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			log.Debugf("- [%d/%d] '%s' cannot be accessed: %s", i+1, len(defaults), path, err.Error())
			continue
		}
		log.Infof("using fallback config path: %s", path)
		return path
	}
	log.Debugf("config not found in any of the following paths: %s", defaults.String())
	return ""
}
