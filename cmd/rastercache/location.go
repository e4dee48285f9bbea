package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/airbusgeo/rastercache/store"
	"github.com/airbusgeo/rastercache/store/boltstore"
	"github.com/airbusgeo/rastercache/store/dirstore"
	"github.com/airbusgeo/rastercache/store/gcs"
	"github.com/airbusgeo/rastercache/store/readcache"
	"github.com/airbusgeo/rastercache/store/redis"
	"github.com/airbusgeo/rastercache/store/s3"
)

// location is a parsed raster url: the store it lives in, and the prefix of
// the raster inside that store
type location struct {
	scheme string
	host   string //bucket, redis address, directory or database file
	prefix string
}

func (l location) String() string {
	if l.prefix == "" {
		return l.scheme + "://" + l.host
	}
	return l.scheme + "://" + l.host + "/" + l.prefix
}

// parseLocation splits a raster url. Supported forms are
//
//	file://dir[/prefix]
//	bolt://file.db
//	mem://[prefix]
//	gs://bucket[/prefix]
//	s3://bucket[/prefix]
//	redis://host:port[/prefix]
func parseLocation(u string) (location, error) {
	idx := strings.Index(u, "://")
	if idx <= 0 {
		return location{}, fmt.Errorf("%q: missing scheme", u)
	}
	l := location{scheme: u[:idx]}
	rest := u[idx+3:]
	switch l.scheme {
	case "file", "bolt":
		//the whole path is the directory or file, relative paths allowed
		if rest == "" {
			return location{}, fmt.Errorf("%q: empty path", u)
		}
		l.host = strings.TrimRight(rest, "/")
		if l.host == "" {
			l.host = "/"
		}
		return l, nil
	case "mem":
		l.prefix = strings.Trim(rest, "/")
		return l, nil
	case "gs", "s3", "redis":
		firstSlash := strings.Index(rest, "/")
		if firstSlash == -1 {
			l.host = rest
		} else {
			l.host = rest[:firstSlash]
			l.prefix = strings.Trim(rest[firstSlash:], "/")
		}
		if l.host == "" {
			return location{}, fmt.Errorf("%q: missing bucket or host", u)
		}
		return l, nil
	}
	return location{}, fmt.Errorf("%q: unsupported scheme %q", u, l.scheme)
}

// remote reports whether objects are fetched over the network
func (l location) remote() bool {
	return l.scheme == "gs" || l.scheme == "s3" || l.scheme == "redis"
}

var memStores = map[string]*store.Memory{}

// openStore opens the store holding l. Remote stores are wrapped in a
// read-through cache of readCacheEntries objects when readCacheEntries > 0.
// The returned function releases the store.
func openStore(ctx context.Context, l location, readCacheEntries int) (store.Store, func() error, error) {
	var st store.Store
	closer := func() error { return nil }
	switch l.scheme {
	case "file":
		d, err := dirstore.New(l.host)
		if err != nil {
			return nil, nil, err
		}
		st = d
	case "bolt":
		b, err := boltstore.Open(l.host)
		if err != nil {
			return nil, nil, err
		}
		st, closer = b, b.Close
	case "mem":
		//mem:// stores only live as long as the process
		m, ok := memStores[l.host]
		if !ok {
			m = store.NewMemory()
			memStores[l.host] = m
		}
		st = m
	case "gs":
		g, err := gcs.New(ctx, l.host, "")
		if err != nil {
			return nil, nil, err
		}
		st = g
	case "s3":
		s, err := s3.New(l.host, "")
		if err != nil {
			return nil, nil, err
		}
		st = s
	case "redis":
		r, err := redis.Dial(ctx, "redis://"+l.host, "")
		if err != nil {
			return nil, nil, err
		}
		st, closer = r, r.Close
	default:
		return nil, nil, fmt.Errorf("unsupported scheme %q", l.scheme)
	}
	if l.remote() && readCacheEntries > 0 {
		lru, err := readcache.NewLRU(readCacheEntries)
		if err != nil {
			closer()
			return nil, nil, err
		}
		rc, err := readcache.New(st, readcache.WithCacher(lru))
		if err != nil {
			closer()
			return nil, nil, err
		}
		st = rc
	}
	return st, closer, nil
}
