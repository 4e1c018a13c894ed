package util

import (
	"fmt"
	"net"
	"net/url"
	"sort"
)

func buildURL(scheme, host string, port int, basePath string) string {
	u := &url.URL{Scheme: scheme, Host: net.JoinHostPort(host, fmt.Sprint(port)), Path: basePath}
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String()
}

// DiscoverURLs lists where the frontend can be reached: loopback first, then
// the bind address or, for wildcard binds, every up IPv4 interface.
func DiscoverURLs(bind string, port int, https bool, basePath string) []string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	seen := map[string]struct{}{}
	var urls []string
	add := func(dst *[]string, host string) {
		u := buildURL(scheme, host, port, basePath)
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		*dst = append(*dst, u)
	}

	add(&urls, "127.0.0.1")
	add(&urls, "localhost")

	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		add(&urls, bind)
		return urls
	}

	var lan []string
	ifaces, err := net.Interfaces()
	if err != nil {
		return urls
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ip, _, err := net.ParseCIDR(a.String())
			if err != nil || ip.IsLoopback() {
				continue
			}
			if v4 := ip.To4(); v4 != nil {
				add(&lan, v4.String())
			}
		}
	}
	sort.Strings(lan)
	return append(urls, lan...)
}
