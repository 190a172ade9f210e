// Package bonjour advertises the stats endpoint over mDNS.
package bonjour

import (
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/grandcat/zeroconf"
	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
)

const (
	ServiceHTTP   = "_http._tcp"
	ServiceVfsMux = "_vfsmux._tcp"
	Domain        = ".local"
)

var (
	mu      sync.Mutex
	servers []*zeroconf.Server
)

func findInterfaceByAddress(targetIP string) ([]net.Interface, error) {
	if targetIP == "" {
		return nil, nil
	}
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			if v, ok := addr.(*net.IPNet); ok && v.IP.String() == targetIP {
				return []net.Interface{iface}, nil
			}
		}
	}
	return nil, fmt.Errorf("no interface found with IP address: %s", targetIP)
}

func nonLoopbackIPv4() ([]string, error) {
	var ips []string

	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addrs {
			if v, ok := addr.(*net.IPNet); ok {
				if ipv4 := v.IP.To4(); ipv4 != nil && !ipv4.IsLoopback() {
					ips = append(ips, ipv4.String())
				}
			}
		}
	}
	return ips, nil
}

// txtRecords describes the stats server's endpoints.
func txtRecords(paths []string) []string {
	txt := []string{"path=/"}
	for i, p := range paths {
		txt = append(txt, fmt.Sprintf("ep%d=%s", i, p))
	}
	return txt
}

func parseListenAddr(listenAddr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "", 0, errors.Annotatef(err, "bad listen address %q", listenAddr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return "", 0, errors.Errorf("bad port in listen address %q", listenAddr)
	}
	return host, port, nil
}

// Advertise publishes the stats server listening at listenAddr as both a
// generic HTTP service and a vfsmux service. paths lists the endpoints served.
func Advertise(listenAddr string, hostname string, svcName string, paths []string) error {
	host, port, err := parseListenAddr(listenAddr)
	if err != nil {
		return err
	}

	ifaces, err := findInterfaceByAddress(host)
	if err != nil {
		log.Infof("findInterfaceByAddress failed: %v", err)
	}

	ips := []string{host}
	if host == "" || host == "0.0.0.0" {
		if ips, err = nonLoopbackIPv4(); err != nil {
			return errors.Annotate(err, "bonjour")
		}
	}

	txt := txtRecords(paths)
	for _, svc := range []string{ServiceHTTP, ServiceVfsMux} {
		s, err := zeroconf.RegisterProxy(svcName, svc, Domain, port, hostname, ips, txt, ifaces)
		if err != nil {
			Shutdown()
			return errors.Annotatef(err, "bonjour: register %s", svc)
		}
		mu.Lock()
		servers = append(servers, s)
		mu.Unlock()
		log.Infof("bonjour: advertising %s %s on port %d", svcName, svc, port)
	}
	return nil
}

func Shutdown() {
	mu.Lock()
	defer mu.Unlock()

	for _, s := range servers {
		s.Shutdown()
	}
	servers = nil
}
