package client

import (
	"fmt"
	"regexp"
	"strconv"
)

// [redis[+sentinel]://][user:pass@|pass@]host[:port][/db]
var urlPattern = regexp.MustCompile(`^(?:redis(\+sentinel)?://)?(?:([^@]+)@)?([^:/@]+)(?::([0-9]+))?(?:/([0-9]+))?$`)

var authPattern = regexp.MustCompile(`^(.+?):(.*)$`)

// ParseURL parses a connection URL into Options.
// Missing parts keep their zero value and get defaults at New
func ParseURL(rawURL string) (Options, error) {
	m := urlPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return Options{}, fmt.Errorf("moonlink: invalid redis url %q", rawURL)
	}

	opts := Options{
		Sentinel: m[1] != "",
		Host:     m[3],
	}

	if m[4] != "" {
		port, err := strconv.Atoi(m[4])
		if err != nil || port < 1 || port > 65535 {
			return Options{}, fmt.Errorf("moonlink: invalid port %q in redis url", m[4])
		}
		opts.Port = port
	}

	if m[5] != "" {
		db, err := strconv.Atoi(m[5])
		if err != nil {
			return Options{}, fmt.Errorf("moonlink: invalid db %q in redis url", m[5])
		}
		opts.DB = db
	}

	if auth := m[2]; auth != "" {
		if a := authPattern.FindStringSubmatch(auth); a != nil {
			opts.Username = a[1]
			opts.Password = a[2]
		} else {
			opts.Password = auth
		}
	}

	return opts, nil
}
