package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the configuration struct for the service.
type Config struct {
	// InputPath is the preferred raw input file path.
	InputPath string
	// RawDir is the fallback directory scanned for raw input files.
	RawDir string
	// OutputDir is the refined dataset directory.
	OutputDir string
	// DatasetName is the logical name the dataset is registered under.
	DatasetName string
	// CatalogEndpoint is the metadata catalog endpoint.
	CatalogEndpoint string
	// CatalogUser is the metadata catalog user.
	CatalogUser string
	// CatalogPass is the metadata catalog user pass.
	CatalogPass string
	// MaxWorkers caps the number of concurrent ticker workers and partition writers.
	MaxWorkers int
	// RunIntervalMinutes schedules recurring runs when positive.
	RunIntervalMinutes int

	registeredFlags map[string]bool
}

// Validate asserts the config sane inputs.
func (cfg *Config) Validate() error {
	var errs error

	if cfg.InputPath == "" && cfg.RawDir == "" {
		errs = errors.Join(errs, fmt.Errorf("an input path or a raw directory must be provided"))
	}
	if cfg.OutputDir == "" {
		errs = errors.Join(errs, fmt.Errorf("output directory cannot be an empty string"))
	}
	if cfg.DatasetName == "" {
		errs = errors.Join(errs, fmt.Errorf("dataset name cannot be an empty string"))
	}
	if cfg.MaxWorkers < 0 {
		errs = errors.Join(errs, fmt.Errorf("max workers cannot be negative"))
	}
	if cfg.RunIntervalMinutes < 0 {
		errs = errors.Join(errs, fmt.Errorf("run interval cannot be negative"))
	}

	return errs
}

// registerFlag registers command line arguments of any type and tracks them to avoid reregistration.
func (cfg *Config) registerFlag(name string, value interface{}, usage string) error {
	if cfg.registeredFlags == nil {
		cfg.registeredFlags = make(map[string]bool)
	}

	if cfg.registeredFlags[name] {
		return nil
	}

	cfg.registeredFlags[name] = true

	defValue := os.Getenv(name)
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("%s: value must be a non-nil pointer", name)
	}

	switch val.Elem().Kind() {
	case reflect.String:
		flag.StringVar(value.(*string), name, defValue, usage)
	case reflect.Bool:
		var def bool
		if defValue != "" {
			def, _ = strconv.ParseBool(defValue)
		}
		flag.BoolVar(value.(*bool), name, def, usage)
	case reflect.Int:
		var def int
		if defValue != "" {
			def, _ = strconv.Atoi(defValue)
		}
		flag.IntVar(value.(*int), name, def, usage)
	case reflect.Slice:
		// Only handle []string
		if val.Elem().Type().Elem().Kind() == reflect.String {
			var def []string
			if defValue != "" {
				def = strings.Split(defValue, ",")
			}
			flag.Func(name, usage, func(s string) error {
				*value.(*[]string) = strings.Split(s, ",")
				return nil
			})
			// Set default if not provided via flag
			if len(def) > 0 {
				*value.(*[]string) = def
			}
		} else {
			return fmt.Errorf("%s: unsupported slice type", name)
		}
	default:
		return fmt.Errorf("%s: unsupported type", name)
	}

	return nil
}

// loadConfig loads the configuration from environment variables and command line flags.
func loadConfig(cfg *Config, path string) error {
	if path == "" {
		path = ".env"
	}

	// Check if the expected .env file exists before loading it.
	_, err := os.Stat(path)
	if err == nil {
		err := godotenv.Load(path)
		if err != nil {
			return fmt.Errorf("loading .env file: %w", err)
		}
	}

	// Register command line arguments using loaded environment variables as defaults.
	err = cfg.registerFlag("inputpath", &cfg.InputPath, "the preferred raw input file path")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("rawdir", &cfg.RawDir, "the fallback raw input directory")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("outputdir", &cfg.OutputDir, "the refined dataset directory")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("datasetname", &cfg.DatasetName, "the logical dataset name")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("catalogendpoint", &cfg.CatalogEndpoint, "the metadata catalog endpoint")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("cataloguser", &cfg.CatalogUser, "the metadata catalog user")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("catalogpass", &cfg.CatalogPass, "the metadata catalog user pass")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("maxworkers", &cfg.MaxWorkers, "the maximum number of concurrent workers")
	if err != nil {
		return err
	}
	err = cfg.registerFlag("runintervalminutes", &cfg.RunIntervalMinutes, "the scheduled run interval in minutes")
	if err != nil {
		return err
	}

	// Parse command-line flags.
	flag.Parse()

	return cfg.Validate()
}
