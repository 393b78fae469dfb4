package fetch

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidLocator is returned for locators that cannot be fetched.
var ErrInvalidLocator = errors.New("invalid file locator")

// Kind says which transport serves a locator.
type Kind string

const (
	KindS3   Kind = "s3"
	KindHTTP Kind = "http"
)

// Locator is a parsed document address.
type Locator struct {
	Raw    string
	Kind   Kind
	Bucket string // S3 only
	Key    string // S3 only
	Region string // S3 only, when the host names one
	URL    *url.URL
}

// Name returns the last path element, used to name the local copy.
func (l Locator) Name() string {
	p := l.Key
	if l.Kind == KindHTTP {
		p = l.URL.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" || name == "" {
		return "download"
	}
	return name
}

// ParseLocator recognises:
//
//	s3://bucket/key
//	https://bucket.s3.amazonaws.com/key
//	https://bucket.s3.<region>.amazonaws.com/key
//	https://s3.<region>.amazonaws.com/bucket/key
//
// Any other http or https URL is fetched with a plain GET.
func ParseLocator(raw string) (Locator, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Locator{}, fmt.Errorf("%w: empty", ErrInvalidLocator)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("%w: %v", ErrInvalidLocator, err)
	}
	loc := Locator{Raw: raw, URL: u}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		loc.Kind = KindS3
		loc.Bucket = u.Host
		loc.Key = strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		if bucket, region, ok := virtualHostedBucket(u.Hostname()); ok {
			loc.Kind = KindS3
			loc.Bucket = bucket
			loc.Region = region
			loc.Key = strings.TrimPrefix(u.Path, "/")
		} else if region, ok := pathStyleHost(u.Hostname()); ok {
			loc.Kind = KindS3
			loc.Region = region
			bucket, key, _ := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
			loc.Bucket = bucket
			loc.Key = key
		} else {
			loc.Kind = KindHTTP
			if u.Host == "" {
				return Locator{}, fmt.Errorf("%w: missing host in %q", ErrInvalidLocator, raw)
			}
		}
	default:
		return Locator{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocator, u.Scheme)
	}

	if loc.Kind == KindS3 {
		if loc.Bucket == "" || loc.Key == "" || strings.HasSuffix(loc.Key, "/") {
			return Locator{}, fmt.Errorf("%w: s3 locator needs bucket and object key: %q", ErrInvalidLocator, raw)
		}
		if k, err := url.PathUnescape(loc.Key); err == nil {
			loc.Key = k
		}
	}
	return loc, nil
}

// virtualHostedBucket parses bucket.s3.amazonaws.com, bucket.s3.region.amazonaws.com
// and the legacy bucket.s3-region.amazonaws.com.
func virtualHostedBucket(host string) (bucket, region string, ok bool) {
	host = strings.ToLower(host)
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return "", "", false
	}
	idx := strings.Index(host, ".s3.")
	if idx < 0 {
		idx = strings.Index(host, ".s3-")
	}
	if idx <= 0 {
		return "", "", false
	}
	bucket = host[:idx]
	rest := strings.TrimSuffix(host[idx+4:], "amazonaws.com")
	rest = strings.TrimSuffix(rest, ".")
	if rest != "" && rest != "dualstack" {
		region = strings.TrimPrefix(rest, "dualstack.")
	}
	return bucket, region, true
}

// pathStyleHost parses s3.amazonaws.com and s3.region.amazonaws.com.
func pathStyleHost(host string) (region string, ok bool) {
	host = strings.ToLower(host)
	if host == "s3.amazonaws.com" {
		return "", true
	}
	if strings.HasPrefix(host, "s3.") && strings.HasSuffix(host, ".amazonaws.com") {
		return strings.TrimSuffix(strings.TrimPrefix(host, "s3."), ".amazonaws.com"), true
	}
	return "", false
}
