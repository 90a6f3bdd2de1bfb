package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "ZARRBENCH"

// Config keys, shared by flags, environment and config file.
const (
	keyShape    = "shape"
	keyChunks   = "chunks"
	keyBackend  = "backend"
	keyWorkDir  = "work-dir"
	keySeed     = "seed"
	keyWriteGB  = "write-gb"
	keyAppendGB = "append-gb"
	keyPlot     = "plot"
	keyCSV      = "csv"
	keyFormat   = "format"
	keyDetails  = "details"
	keyVerbose  = "verbose"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatTOML  = "toml"
)

type runConfig struct {
	shape    []int
	chunks   []int
	backend  string
	workDir  string
	seed     int64
	writeGB  float64
	appendGB float64
	plot     bool
	csvPath  string
	format   string
	details  bool
	verbose  bool
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(keyShape, "64,1080,1920")
	v.SetDefault(keyChunks, "64,540,960")
	v.SetDefault(keyWorkDir, "tmp")
	v.SetDefault(keyWriteGB, 1.0)
	v.SetDefault(keyAppendGB, 1.0)
	v.SetDefault(keyFormat, formatTable)

	return v
}

// bindFlags registers the persistent flags shared by every benchmark
// command and binds them into v.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := cmd.PersistentFlags()
	flags.String(keyShape, "64,1080,1920",
		"Base array shape; the first dimension is the growth axis")
	flags.String(keyChunks, "64,540,960",
		"Chunk shape, same rank as --shape")
	flags.String(keyBackend, "",
		"Only benchmark this backend (see 'zarrbench backends')")
	flags.String(keyWorkDir, "tmp",
		"Directory holding each backend's working path")
	flags.Int64(keySeed, 0,
		"Random seed for synthetic data (0 = use current time)")
	flags.Bool(keyPlot, false,
		"Render bandwidth charts after the run")
	flags.String(keyCSV, "",
		"Write per-iteration and average series to this CSV file")
	flags.String(keyFormat, formatTable,
		"Result output: table, json, toml")
	flags.Bool(keyDetails, false,
		"Print per-iteration tables after the summary")
	flags.BoolP(keyVerbose, "v", false,
		"Log adapter-level debug output")

	for _, key := range []string{
		keyShape, keyChunks, keyBackend, keyWorkDir, keySeed,
		keyPlot, keyCSV, keyFormat, keyDetails, keyVerbose,
	} {
		if err := v.BindPFlag(key, flags.Lookup(key)); err != nil {
			return fmt.Errorf("bind flag %s: %w", key, err)
		}
	}

	return nil
}

// readConfigFile loads path into v when set.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	fmt.Fprintln(os.Stderr, "Using config file:", v.ConfigFileUsed())

	return nil
}

func loadConfig(v *viper.Viper) (runConfig, error) {
	shape, err := dims(v, keyShape)
	if err != nil {
		return runConfig{}, err
	}

	chunks, err := dims(v, keyChunks)
	if err != nil {
		return runConfig{}, err
	}

	cfg := runConfig{
		shape:    shape,
		chunks:   chunks,
		backend:  v.GetString(keyBackend),
		workDir:  v.GetString(keyWorkDir),
		seed:     v.GetInt64(keySeed),
		writeGB:  v.GetFloat64(keyWriteGB),
		appendGB: v.GetFloat64(keyAppendGB),
		plot:     v.GetBool(keyPlot),
		csvPath:  v.GetString(keyCSV),
		format:   strings.ToLower(v.GetString(keyFormat)),
		details:  v.GetBool(keyDetails),
		verbose:  v.GetBool(keyVerbose),
	}

	switch cfg.format {
	case formatTable, formatJSON, formatTOML:
	default:
		return runConfig{}, fmt.Errorf("unknown format %q (want table, json or toml)", cfg.format)
	}

	if cfg.writeGB <= 0 || cfg.appendGB <= 0 {
		return runConfig{}, fmt.Errorf("gigabyte caps must be positive")
	}

	if cfg.seed == 0 {
		cfg.seed = time.Now().UnixNano()
	}

	return cfg, nil
}

// dims reads a list of extents given either as "a,b,c" (flags, env)
// or as a list (config file).
func dims(v *viper.Viper, key string) ([]int, error) {
	switch raw := v.Get(key).(type) {
	case string:
		return parseDims(raw)
	case []any:
		out := make([]int, len(raw))
		for i, x := range raw {
			n, err := strconv.Atoi(fmt.Sprint(x))
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
			}

			out[i] = n
		}

		return out, nil
	case []int:
		return raw, nil
	default:
		return nil, fmt.Errorf("%s: unsupported value %v", key, raw)
	}
}

func parseDims(s string) ([]int, error) {
	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		return nil, fmt.Errorf("empty dimension list")
	}

	parts := strings.Split(s, ",")
	out := make([]int, len(parts))

	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("dimension %q: %w", p, err)
		}

		out[i] = n
	}

	return out, nil
}
