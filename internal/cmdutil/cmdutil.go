// Package cmdutil holds the flags and process setup shared by the binaries.
package cmdutil

import (
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"log/syslog"
	"net/http"
	_ "net/http/pprof" // no_lint
	"os"

	"github.com/pkg/profile"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	"github.com/skycoin/skycoin/src/util/logging"
	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options are the flags common to every binary.
type Options struct {
	SyslogAddr  string
	Tag         string
	LogLevel    string
	LogFile     string
	ProfileMode string
	ProfilePort string
}

// AddFlags registers the options on fs.
func (o *Options) AddFlags(fs *pflag.FlagSet, tag string) {
	fs.StringVarP(&o.SyslogAddr, "syslog", "", "none", "syslog server address. E.g. localhost:514")
	fs.StringVarP(&o.Tag, "tag", "", tag, "logging tag")
	fs.StringVarP(&o.LogLevel, "log-level", "", "info", "log level: debug, info, warn, error")
	fs.StringVarP(&o.LogFile, "log-file", "", "", "also write logs to this file, rotated at 100 MB")
	fs.StringVarP(&o.ProfileMode, "profile", "p", "none", "enable profiling with pprof. Mode:  none or one of: [cpu, mem, mutex, block, trace, http]")
	fs.StringVarP(&o.ProfilePort, "port", "", "6060", "port for http-mode of pprof")
}

// StartProfiler starts profiling in the configured mode and returns the
// function stopping it.
func (o *Options) StartProfiler() func() {
	var option func(*profile.Profile)
	switch o.ProfileMode {
	case "none", "":
		return func() {}
	case "http":
		go func() {
			log.Println(http.ListenAndServe(fmt.Sprintf("localhost:%v", o.ProfilePort), nil))
		}()
		return func() {}
	case "cpu":
		option = profile.CPUProfile
	case "mem":
		option = profile.MemProfile
	case "mutex":
		option = profile.MutexProfile
	case "block":
		option = profile.BlockProfile
	case "trace":
		option = profile.TraceProfile
	default:
		log.Fatalf("unknown profile mode: %s", o.ProfileMode)
	}
	return profile.Start(profile.ProfilePath("./logs/"+o.Tag), option).Stop
}

// StartLogger configures the global logging output and returns the logger of
// the binary.
func (o *Options) StartLogger() *logging.Logger {
	logger := logging.MustGetLogger(o.Tag)

	lvl, err := logging.LevelFromString(o.LogLevel)
	if err != nil {
		logger.Fatalf("Invalid log level %q: %s", o.LogLevel, err)
	}
	logging.SetLevel(lvl)

	var out io.Writer = os.Stdout
	if o.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   o.LogFile,
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}

	if o.SyslogAddr != "none" {
		hook, err := logrus_syslog.NewSyslogHook("udp", o.SyslogAddr, syslog.LOG_INFO, o.Tag)
		if err != nil {
			logger.Error("Unable to connect to syslog daemon:", err)
		} else {
			logging.AddHook(hook)
			if o.LogFile == "" {
				out = ioutil.Discard
			}
		}
	}
	logging.SetOutputTo(out)
	return logger
}
