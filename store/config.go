package store

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/vt/datafile"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/index"
)

const (
	configName = "config.json"
	dataName   = "data"
	indexName  = "index"
)

// Config is the persistent configuration of a store directory, kept in
// its config.json.
type Config struct {
	Algo  string // hash algorithm name
	Index string // index backend name; chosen at first open if empty
	// chunking parameters for data added through this store
	MinBlock     int    `json:",omitempty"`
	MaxBlock     int    `json:",omitempty"`
	Chunker      string `json:",omitempty"` // "" for the rolling hash or "rabin"
	Poly         uint64 `json:",omitempty"` // rabin polynomial
	RolloverSize int64  // data file size threshold
}

func (cfg *Config) setDefaults() (err error) {
	if cfg.Algo == "" {
		cfg.Algo = hashcode.DefaultAlgo.String()
	}
	if _, err = hashcode.AlgoByName(cfg.Algo); err != nil {
		return
	}
	if cfg.Index != "" {
		if _, ok := index.Lookup(cfg.Index); !ok {
			return errors.Errorf("unknown index backend %q", cfg.Index)
		}
	}
	if cfg.RolloverSize == 0 {
		cfg.RolloverSize = datafile.DefaultRollover
	}
	switch cfg.Chunker {
	case "", "rabin":
	default:
		return errors.Errorf("unknown chunker %q", cfg.Chunker)
	}
	return
}

func canstat(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Init creates a store directory. An existing directory must be empty.
func Init(dir string, cfg Config) (err error) {
	defer Return(&err)
	dir = filepath.Clean(dir)

	if canstat(dir) {
		files, err := ioutil.ReadDir(dir)
		Ck(err)
		if len(files) > 0 {
			return &ExistsError{Dir: dir}
		}
	}
	err = cfg.setDefaults()
	Ck(err)

	err = os.MkdirAll(filepath.Join(dir, dataName), 0755)
	Ck(err)
	err = SaveConfig(dir, cfg)
	Ck(err)
	return
}

// LoadConfig reads the configuration of a store directory.
func LoadConfig(dir string) (cfg Config, err error) {
	buf, err := ioutil.ReadFile(filepath.Join(dir, configName))
	if err != nil {
		if os.IsNotExist(err) {
			err = &NotStoreError{Dir: dir}
		}
		return
	}
	err = json.Unmarshal(buf, &cfg)
	if err != nil {
		return cfg, errors.Wrapf(err, "%s", filepath.Join(dir, configName))
	}
	err = cfg.setDefaults()
	return
}

// SaveConfig atomically replaces the configuration of a store directory.
func SaveConfig(dir string, cfg Config) (err error) {
	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return
	}
	return renameio.WriteFile(filepath.Join(dir, configName), append(buf, '\n'), 0644)
}
