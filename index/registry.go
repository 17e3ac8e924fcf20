package index

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/t7a/vt/hashcode"
)

// Backend describes an index implementation.
type Backend struct {
	Name      string
	Suffix    string
	Supported func() bool
	Open      func(path string, algo hashcode.Algo) (Index, error)
}

// Path is where the backend keeps its files for basepath.
func (b Backend) Path(basepath string) string {
	return basepath + "." + b.Suffix
}

var (
	registryMu sync.Mutex
	backends   []Backend
)

// Register adds a backend. Backends registered first are preferred.
func Register(b Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for _, o := range backends {
		if o.Name == b.Name {
			panic("index: backend already registered: " + b.Name)
		}
	}
	backends = append(backends, b)
}

func init() {
	Register(Backend{Name: "badger", Suffix: "badger", Supported: always, Open: openBadger})
	Register(Backend{Name: "pebble", Suffix: "pebble", Supported: always, Open: openPebble})
	Register(Backend{Name: "hashmap", Suffix: "mpk", Supported: always, Open: openHashmap})
}

func always() bool { return true }

// Backends lists the registered backends in preference order.
func Backends() []Backend {
	registryMu.Lock()
	defer registryMu.Unlock()
	return append([]Backend(nil), backends...)
}

// Lookup returns the backend registered under name.
func Lookup(name string) (b Backend, ok bool) {
	for _, b = range Backends() {
		if b.Name == name {
			return b, true
		}
	}
	return Backend{}, false
}

// Choose picks the backend for basepath. A backend whose files already
// exist wins; otherwise preferred if it is supported, then the first
// supported backend in registration order.
func Choose(basepath, preferred string) (b Backend, err error) {
	candidates := Backends()
	if preferred != "" {
		p, ok := Lookup(preferred)
		if !ok {
			log.Warnf("ignoring unknown index backend %q", preferred)
		} else {
			candidates = append([]Backend{p}, candidates...)
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c.Path(basepath)); err == nil {
			if !c.Supported() {
				return b, errors.Errorf("%s: existing %s index is not supported here", basepath, c.Name)
			}
			return c, nil
		}
	}
	var skipped []string
	for _, c := range candidates {
		if c.Supported() {
			if len(skipped) > 0 {
				log.Infof("index backends %s unavailable, using %s", strings.Join(skipped, ","), c.Name)
			}
			return c, nil
		}
		skipped = append(skipped, c.Name)
	}
	return b, errors.Errorf("no supported index backend: tried %s", strings.Join(skipped, ","))
}

// Open chooses a backend for basepath and opens it.
func Open(basepath, preferred string, algo hashcode.Algo) (ix Index, err error) {
	b, err := Choose(basepath, preferred)
	if err != nil {
		return
	}
	log.Debugf("opening %s index at %s", b.Name, b.Path(basepath))
	return b.Open(b.Path(basepath), algo)
}
