package rgrid

import (
	"encoding"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ShoshinNikita/rgrid/pkg/rlog"
)

type Config struct {
	BuildInfo BuildInfo

	ServerPort int
	Dir        string

	API APIConfig

	MemoryCacheSize  int
	MemoryCacheTTL   time.Duration
	DiskCacheMaxSize MiB
	DiskCacheMaxAge  time.Duration

	MaxImageSize MiB
	WorkersCount int
	Prefetch     bool

	// Debug options

	LogLevel                rlog.Level
	ReadStaticFilesFromDisk bool
}

type BuildInfo struct {
	ShortGitHash string
	CommitTime   string
}

type APIConfig struct {
	URL   string
	Limit int
}

type MiB int

func (mb MiB) Bytes() int64 {
	return int64(mb) << 20
}

func (mb MiB) MarshalText() (text []byte, err error) {
	return []byte(mb.String()), nil
}

func (mb MiB) String() string {
	if mb >= 1024 && mb%1024 == 0 {
		return strconv.Itoa(int(mb/1024)) + "Gi"
	}
	return strconv.Itoa(int(mb)) + "Mi"
}

func (mb *MiB) UnmarshalText(data []byte) error {
	text := string(data)

	mul := 1
	switch {
	case strings.HasSuffix(text, "Mi"):
	case strings.HasSuffix(text, "Gi"):
		mul = 1024
	default:
		return fmt.Errorf("valid suffixes: Mi, Gi")
	}
	n, err := strconv.Atoi(text[:len(text)-2])
	if err != nil {
		return fmt.Errorf("invalid size: %w", err)
	}
	if n < 0 {
		return errors.New("size can't be negative")
	}

	*mb = MiB(n * mul)
	return nil
}

type flagParams struct {
	// p is a pointer to a value.
	p            any
	defaultValue any
	desc         string
}

func (cfg *Config) getFlagParams() map[string]flagParams {
	return map[string]flagParams{
		"port": {
			p: &cfg.ServerPort, defaultValue: 8080, desc: "Server port",
		},
		"dir": {
			p: &cfg.Dir, defaultValue: defaultCacheDir(), desc: "Directory for cached images, created on first use",
		},
		//
		"api-url": {
			p: &cfg.API.URL, defaultValue: "https://acharyaprashant.org/api/v2/content/misc/media-coverages",
			desc: "Url of the media coverages endpoint",
		},
		"api-limit": {
			p: &cfg.API.Limit, defaultValue: 100, desc: "Number of records to request",
		},
		//
		"memory-cache-size": {
			p: &cfg.MemoryCacheSize, defaultValue: 500, desc: "Max number of decoded images kept in memory",
		},
		"memory-cache-ttl": {
			p: &cfg.MemoryCacheTTL, defaultValue: 30 * time.Minute, desc: "Max age of decoded images kept in memory, 0 to disable",
		},
		"disk-cache-max-size": {
			p: &cfg.DiskCacheMaxSize, defaultValue: MiB(0), desc: "" +
				"Max total size of cached images on disk. 0Mi means no limit.\n" +
				"If both disk-cache-max-size and disk-cache-max-age are zero, the disk cache is never cleaned",
		},
		"disk-cache-max-age": {
			p: &cfg.DiskCacheMaxAge, defaultValue: time.Duration(0), desc: "Max age of cached images on disk, 0 means no limit",
		},
		//
		"max-image-size": {
			p: &cfg.MaxImageSize, defaultValue: MiB(20), desc: "Max size of a downloaded image",
		},
		"workers-count": {
			p: &cfg.WorkersCount, defaultValue: runtime.NumCPU() * 2, desc: "Number of workers for image resolution",
		},
		"prefetch": {
			p: &cfg.Prefetch, defaultValue: true, desc: "Resolve all images right after the item list is loaded",
		},
		//
		"log-level": {
			p: &cfg.LogLevel, defaultValue: rlog.LevelInfo, desc: "Set the minimal log level. One of: debug, info, warn, error",
		},
		"read-static-files-from-disk": {
			p: &cfg.ReadStaticFilesFromDisk, defaultValue: false, desc: "Read static files directly from disk",
		},
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "rgrid", "ImageCache")
}

func ParseConfig() (Config, error) {
	return parseConfig(flag.CommandLine, os.Args[1:])
}

func parseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{
		BuildInfo: readBuildInfo(),
	}

	var printVersion bool
	fs.BoolVar(&printVersion, "version", false, "Print version and exit")

	flags := cfg.getFlagParams()
	for name, params := range flags {
		switch p := params.p.(type) {
		case *bool:
			fs.BoolVar(p, name, params.defaultValue.(bool), params.desc)
		case *int:
			fs.IntVar(p, name, params.defaultValue.(int), params.desc)
		case *string:
			fs.StringVar(p, name, params.defaultValue.(string), params.desc)
		case *time.Duration:
			fs.DurationVar(p, name, params.defaultValue.(time.Duration), params.desc)
		case encoding.TextUnmarshaler:
			fs.TextVar(p, name, params.defaultValue.(encoding.TextMarshaler), params.desc)
		default:
			return Config{}, fmt.Errorf("flag %q has unsupported type: %T", name, p)
		}
	}

	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if printVersion {
		cfg.BuildInfo.Print()
		os.Exit(0)
	}

	if cfg.ServerPort <= 0 {
		return cfg, errors.New("server port must be > 0")
	}
	if cfg.Dir == "" {
		return cfg, errors.New("dir can't be empty")
	}
	if u, err := url.Parse(cfg.API.URL); err != nil || !u.IsAbs() {
		return cfg, fmt.Errorf("api url must be an absolute url, got %q", cfg.API.URL)
	}
	if cfg.API.Limit <= 0 {
		return cfg, errors.New("api limit must be > 0")
	}
	if cfg.WorkersCount <= 0 {
		return cfg, errors.New("workers count must be > 0")
	}
	if cfg.MemoryCacheSize < 0 {
		return cfg, errors.New("memory cache size can't be negative")
	}

	return cfg, nil
}

func readBuildInfo() BuildInfo {
	res := BuildInfo{
		ShortGitHash: "unknown",
		CommitTime:   "unknown",
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return res
	}

	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			res.ShortGitHash = s.Value
			if len(res.ShortGitHash) > 7 {
				res.ShortGitHash = res.ShortGitHash[:7]
			}

		case "vcs.time":
			t, err := time.Parse(time.RFC3339, s.Value)
			if err == nil {
				res.CommitTime = t.UTC().Format("2006-01-02 15:04:05 UTC")
			}
		}
	}
	return res
}

func (info BuildInfo) Print() {
	fmt.Fprintf(os.Stderr, `
                          _      _
     _ __  __ _   _ __   (_)  __| |
    | '__|/ _' | | '__|  | | / _' |
    | |  | (_| | | |     | || (_| |
    |_|   \__, | |_|     |_| \__,_|
          |___/

    Commit Hash: %q
    Commit Time: %q

`,
		info.ShortGitHash,
		info.CommitTime,
	)
}

func (cfg Config) Print() {
	flags := cfg.getFlagParams()

	var (
		names         = make([]string, 0, len(flags))
		maxNameLength int
	)
	for name := range flags {
		if len(name) > maxNameLength {
			maxNameLength = len(name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	fmt.Fprint(os.Stderr, "    Config:\n\n")
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "        --%-*s = %v\n", maxNameLength, name, reflect.ValueOf(flags[name].p).Elem())
	}
	fmt.Fprint(os.Stderr, "\n")
}
