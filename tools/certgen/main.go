// Package main writes a self-signed server certificate and key for running
// the glue server with -tls-cert and -tls-key.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/atinyakov/smsglue/internal/certgen"
)

func main() {
	dir := flag.String("dir", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated host names and addresses")
	validFor := flag.Duration("valid-for", 365*24*time.Hour, "certificate lifetime")
	flag.Parse()

	certPath, keyPath, err := certgen.WriteServerCertificate(*dir, splitHosts(*hosts), *validFor)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("wrote %s and %s\n", certPath, keyPath)
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
