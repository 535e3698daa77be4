// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2016 The Decred developers
// Copyright (c) 2017-2019 The Spacemesh developers

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/spacemeshos/packetcrypt/verifier"
)

const (
	defaultConfigFilename = "pcverify.conf"
	defaultDataDirname    = "data"
	defaultLogDirname     = "logs"
	defaultProtocol       = 2
)

var (
	defaultBaseDir    = baseDir()
	defaultConfigFile = filepath.Join(defaultBaseDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultBaseDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultBaseDir, defaultLogDirname)
)

func baseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pcverify"
	}
	return filepath.Join(home, ".pcverify")
}

// Config defines the configuration options for pcverify.
//
// Options are resolved in order: defaults, ini file, command line.
type Config struct {
	BaseDir    string `long:"basedir" description:"The base directory that contains pcverify's data, logs, configuration file, etc."`
	ConfigFile string `short:"c" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"The directory to store block headers within"`
	LogDir     string `long:"logdir" description:"Directory to log output."`
	DebugLog   bool   `long:"debuglog" description:"Enable debug logs"`
	JSONLog    bool   `long:"jsonlog" description:"Whether to log in JSON format"`

	Protocol       uint32 `long:"pcp" description:"PacketCrypt protocol version used to validate announcements"`
	RawMetricsAddr string `long:"metrics" description:"The interface/port to serve prometheus metrics on (empty to disable)"`
	MetricsAddr    net.Addr
	FirstHeight    uint32 `long:"first-height" description:"Height of the first header read by import-headers"`

	Verifier *verifier.Config `group:"Verifier" namespace:"verifier"`

	Args struct {
		Command string   `positional-arg-name:"command" description:"ann, block or import-headers"`
		Files   []string `positional-arg-name:"file"`
	} `positional-args:"yes"`
}

// DefaultConfig returns a config with default hardcoded values.
func DefaultConfig() *Config {
	vcfg := verifier.DefaultConfig()
	return &Config{
		BaseDir:    defaultBaseDir,
		ConfigFile: defaultConfigFile,
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		Protocol:   defaultProtocol,
		Verifier:   &vcfg,
	}
}

// ParseFlags reads values from command line arguments.
func ParseFlags(preCfg *Config) (*Config, error) {
	// Positional arguments would accumulate over repeated parses.
	preCfg.Args.Files = nil
	if _, err := flags.Parse(preCfg); err != nil {
		return nil, err
	}
	return preCfg, nil
}

// ReadConfigFile reads values from a conf file. A missing file is not an
// error, a malformed one is.
func ReadConfigFile(preCfg *Config, logger *zap.Logger) (*Config, error) {
	preCfg.BaseDir = cleanAndExpandPath(preCfg.BaseDir)
	preCfg.ConfigFile = cleanAndExpandPath(preCfg.ConfigFile)
	if preCfg.BaseDir != defaultBaseDir && preCfg.ConfigFile == defaultConfigFile {
		preCfg.ConfigFile = filepath.Join(preCfg.BaseDir, defaultConfigFilename)
	}

	cfg := preCfg
	if err := flags.IniParse(preCfg.ConfigFile, cfg); err != nil {
		var iniError *flags.IniError
		if errors.As(err, &iniError) {
			return nil, err
		}
		logger.Warn("config file not loaded", zap.String("path", preCfg.ConfigFile), zap.Error(err))
	}
	return cfg, nil
}

// SetupConfig creates the base directory and resolves paths and addresses.
func SetupConfig(cfg *Config) (*Config, error) {
	if cfg.BaseDir != defaultBaseDir {
		if cfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.BaseDir, defaultDataDirname)
		}
		if cfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.BaseDir, defaultLogDirname)
		}
	}

	if err := os.MkdirAll(cfg.BaseDir, 0o700); err != nil {
		// Show a nicer error message if it's because a symlink is
		// linked to a directory that does not exist (probably because
		// it's not mounted).
		var pathError *fs.PathError
		if errors.As(err, &pathError) && os.IsExist(err) {
			if link, lerr := os.Readlink(pathError.Path); lerr == nil {
				err = fmt.Errorf("is symlink %s -> %s mounted?", pathError.Path, link)
			}
		}
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	cfg.DataDir = cleanAndExpandPath(cfg.DataDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)

	if cfg.RawMetricsAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", cfg.RawMetricsAddr)
		if err != nil {
			return nil, fmt.Errorf("resolving metrics address: %w", err)
		}
		cfg.MetricsAddr = addr
	}
	if cfg.Verifier == nil {
		vcfg := verifier.DefaultConfig()
		cfg.Verifier = &vcfg
	}
	return cfg, nil
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
// This function is taken from https://github.com/btcsuite/btcd
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
