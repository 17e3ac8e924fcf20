package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"os/signal"

	"github.com/docopt/docopt-go"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/restic/chunker"
	log "github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/vt"
	"github.com/t7a/vt/block"
	"github.com/t7a/vt/blockify"
	"github.com/t7a/vt/hashcode"
	"github.com/t7a/vt/store"
	"gopkg.in/yaml.v2"
)

func init() {
	var debug string
	debug = os.Getenv("DEBUG")
	if debug == "1" {
		log.SetLevel(log.DebugLevel)
	}
	log.SetReportCaller(true)
	formatter := &log.TextFormatter{
		CallerPrettyfier: vt.Caller(),
		FieldMap: log.FieldMap{
			log.FieldKeyFile: "caller",
		},
	}
	formatter.TimestampFormat = "15:04:05.999999999"
	log.SetFormatter(formatter)
}

type Opts struct {
	Init     bool
	Add      bool
	Put      bool
	Get      bool
	Contains bool
	Cat      bool
	Missing  bool
	Pull     bool
	Fsck     bool
	Rebuild  bool
	Refresh  bool
	Watch    bool
	Stats    bool
	Dir      string
	Otherdir string
	File     string
	Hashcode string
	Block    string
	Config   string `docopt:"-c"`
	Algo     string `docopt:"-a"`
	Index    string `docopt:"-i"`
	Rabin    bool   `docopt:"--rabin"`
	Checksum bool   `docopt:"--checksum"`
	Window   int    `docopt:"-w"`
	Recurse  bool   `docopt:"-r"`
}

// Defaults is the YAML file read with -c or from $VT_CONFIG. Its values
// apply to stores created by init.
type Defaults struct {
	Algo     string `yaml:"algo"`
	Index    string `yaml:"index"`
	MinBlock int    `yaml:"minblock"`
	MaxBlock int    `yaml:"maxblock"`
	Chunker  string `yaml:"chunker"`
	Poly     uint64 `yaml:"poly"`
	Rollover string `yaml:"rollover"`
}

const usage = `vt

Usage:
  vt [-c <config>] init [-a <algo>] [-i <index>] [--rabin] <dir>
  vt add <dir> [<file>]
  vt put <dir>
  vt get <dir> <hashcode>
  vt contains <dir> <hashcode>
  vt cat <dir> <block>
  vt missing [--checksum] [-w <window>] <dir> <otherdir>
  vt pull [-w <window>] <dir> <otherdir>
  vt fsck [-r] <dir> [<block>]
  vt rebuild <dir>
  vt refresh <dir>
  vt watch <dir>
  vt stats <dir>

Options:
  -h --help     Show this screen.
  --version     Show version.
  -c <config>   YAML file of defaults for init.
  -a <algo>     Hash algorithm: sha1, sha256, sha512 or blake3.
  -i <index>    Index backend: badger, pebble or hashmap.
  --rabin       Chunk with Rabin fingerprints instead of the rolling hash.
  --checksum    Compare runs of hashcodes by checksum.
  -w <window>   Hashcodes compared per run [default: 1024].
  -r            Check the children of indirect blocks too.
`

func main() {
	// see https://github.com/google/go-cmdtest
	os.Exit(run())
}

func run() (rc int) {
	// docopt's default handler calls os.Exit, which would end in-process tests
	var helped bool
	parser := &docopt.Parser{HelpHandler: func(err error, output string) {
		helped = true
		if err != nil {
			fmt.Fprintln(os.Stderr, output)
			return
		}
		fmt.Println(output)
	}}
	o, err := parser.ParseArgs(usage, os.Args[1:], "0.1")
	if err != nil {
		return 22
	}
	if helped {
		return 0
	}
	var opts Opts
	err = o.Bind(&opts)
	if err != nil {
		log.Error(err)
		return 22
	}
	log.Debug(opts)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if opts.Init {
		msg, err := initStore(opts)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(msg)
		return 0
	}

	S, err := store.Open(opts.Dir)
	if err != nil {
		log.Error(err)
		return 42
	}
	defer func() {
		err := S.Close()
		if err != nil {
			log.Error(err)
			rc = 42
		}
	}()

	switch true {
	case opts.Add:
		b, err := add(ctx, S, opts.File)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(b)
	case opts.Put:
		buf, err := ioutil.ReadAll(os.Stdin)
		if err != nil {
			log.Error(err)
			return 5
		}
		h, err := S.Add(ctx, buf)
		if err != nil {
			log.Error(err)
			return 42
		}
		err = S.Flush(ctx)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Println(h)
	case opts.Get:
		h, err := hashcode.Parse(opts.Hashcode)
		if err != nil {
			log.Error(err)
			return 22
		}
		buf, err := S.Get(ctx, h)
		if err != nil {
			log.Error(err)
			return 42
		}
		_, err = os.Stdout.Write(buf)
		if err != nil {
			log.Error(err)
			return 25
		}
	case opts.Contains:
		h, err := hashcode.Parse(opts.Hashcode)
		if err != nil {
			log.Error(err)
			return 22
		}
		ok, err := S.Contains(ctx, h)
		if err != nil {
			log.Error(err)
			return 42
		}
		if !ok {
			return 1
		}
	case opts.Cat:
		b, err := block.Parse(opts.Block)
		if err != nil {
			log.Error(err)
			return 22
		}
		w := bufio.NewWriter(os.Stdout)
		_, err = io.Copy(w, block.NewReader(ctx, S, b))
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Missing, opts.Pull:
		other, err := store.Open(opts.Otherdir)
		if err != nil {
			log.Error(err)
			return 42
		}
		defer other.Close()
		if opts.Pull {
			n, err := store.Pull(ctx, S, other, opts.Window)
			if err != nil {
				log.Error(err)
				return 42
			}
			fmt.Printf("pulled %d chunks\n", n)
			return 0
		}
		missing := store.MissingHashCodes
		if opts.Checksum {
			missing = store.MissingHashCodesByChecksum
		}
		err = missing(ctx, S, other, opts.Window, func(h hashcode.HashCode) error {
			_, err := fmt.Println(h)
			return err
		})
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Fsck:
		ok, err := fsck(ctx, S, opts.Block, opts.Recurse)
		if err != nil {
			log.Error(err)
			return 42
		}
		if !ok {
			return 1
		}
	case opts.Rebuild:
		err = S.Rebuild(ctx)
		if err != nil {
			log.Error(err)
			return 42
		}
	case opts.Refresh:
		n, err := S.Refresh(ctx)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Printf("indexed %d chunks\n", n)
	case opts.Watch:
		err = S.Watch(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error(err)
			return 42
		}
	case opts.Stats:
		st, err := S.Stats(ctx)
		if err != nil {
			log.Error(err)
			return 42
		}
		fmt.Printf("algo: %s\nindex: %s\nfiles: %d\nbytes: %s\nchunks: %d\n",
			S.Algo(), st.Index, st.Files, humanize.IBytes(uint64(st.Bytes)), st.Chunks)
	}
	return 0
}

func loadDefaults(fn string) (d Defaults, err error) {
	if fn == "" {
		fn = os.Getenv("VT_CONFIG")
	}
	if fn == "" {
		return
	}
	buf, err := ioutil.ReadFile(fn)
	if err != nil {
		return
	}
	err = yaml.UnmarshalStrict(buf, &d)
	if err != nil {
		return d, errors.Wrapf(err, "%s", fn)
	}
	return
}

func initStore(opts Opts) (msg string, err error) {
	defer Return(&err)
	d, err := loadDefaults(opts.Config)
	Ck(err)
	cfg := store.Config{
		Algo:     d.Algo,
		Index:    d.Index,
		MinBlock: d.MinBlock,
		MaxBlock: d.MaxBlock,
		Chunker:  d.Chunker,
		Poly:     d.Poly,
	}
	if d.Rollover != "" {
		size, err := humanize.ParseBytes(d.Rollover)
		Ck(err)
		cfg.RolloverSize = int64(size)
	}
	if opts.Algo != "" {
		cfg.Algo = opts.Algo
	}
	if opts.Index != "" {
		cfg.Index = opts.Index
	}
	if opts.Rabin {
		cfg.Chunker = "rabin"
	}
	if cfg.Chunker == "rabin" {
		// the polynomial must stay fixed for chunks to deduplicate
		rabin, err := blockify.Rabin{Poly: chunker.Pol(cfg.Poly)}.Init()
		Ck(err)
		cfg.Poly = uint64(rabin.Poly)
	}
	err = store.Init(opts.Dir, cfg)
	Ck(err)
	return fmt.Sprintf("Initialized empty store in %s", opts.Dir), nil
}

// chunkSource returns the chunker configured for S, with a format
// scanner chosen by file name.
func chunkSource(cfg store.Config, name string) (src blockify.ChunkSource, err error) {
	if cfg.Chunker == "rabin" {
		return blockify.Rabin{Poly: chunker.Pol(cfg.Poly)}.Init()
	}
	return blockify.Chunker{
		MinBlock: cfg.MinBlock,
		MaxBlock: cfg.MaxBlock,
		Scanner:  blockify.ScannerFor(name),
	}.Init()
}

func add(ctx context.Context, S *store.DataDirStore, fn string) (b block.Block, err error) {
	var r io.Reader = os.Stdin
	if fn != "" {
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	src, err := chunkSource(S.Config, fn)
	if err != nil {
		return
	}
	b, err = blockify.BlockFor(ctx, S, r, src)
	if err != nil {
		return
	}
	err = S.Flush(ctx)
	return
}

func fsck(ctx context.Context, S *store.DataDirStore, transcription string, recurse bool) (ok bool, err error) {
	if transcription == "" {
		return store.Verify(ctx, S, func(h hashcode.HashCode, problem error) {
			if problem != nil {
				fmt.Printf("%s: %v\n", h, problem)
			}
		})
	}
	b, err := block.Parse(transcription)
	if err != nil {
		return
	}
	return block.Fsck(ctx, S, b, recurse, func(b block.Block, problem error) {
		if problem != nil {
			fmt.Printf("%s: %v\n", b, problem)
		}
	})
}
