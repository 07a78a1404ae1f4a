// Command simqso broadcasts QARTest-style contact datagrams so the map can be
// exercised without a contest logger. Timestamps come from the domain clock.
//
// Usage:
//
//	go run ./cmd/simqso -addr 127.0.0.1:12060 -band 20 IS0GVH N1CALL
package main

import (
	"bytes"
	"encoding/xml"
	"flag"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"github.com/couchcryptid/qso-map-service/internal/domain"
)

// contactInfo mirrors the fields QARTest sends; the service reads only call and band.
type contactInfo struct {
	XMLName     xml.Name `xml:"contactinfo"`
	Logger      string   `xml:"logger"`
	ContestName string   `xml:"contestname"`
	Timestamp   string   `xml:"timestamp"`
	MyCall      string   `xml:"mycall"`
	Band        string   `xml:"band"`
	Mode        string   `xml:"mode"`
	Call        string   `xml:"call"`
	Snt         string   `xml:"snt"`
	Rcv         string   `xml:"rcv"`
	Duplicate   string   `xml:"duplicate"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", "127.0.0.1:12060", "UDP address of the map service")
	band := flag.String("band", "40", "band to report")
	mode := flag.String("mode", "SSB", "mode to report")
	myCall := flag.String("mycall", "XXXXXX", "station callsign")
	interval := flag.Duration("interval", 0, "pause between datagrams")
	flag.Parse()

	calls := flag.Args()
	if len(calls) == 0 {
		calls = []string{"N1CALL"}
	}

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()

	for i, call := range calls {
		payload, err := encode(contactInfo{
			Logger:      "QARTest 14.9.1",
			ContestName: "CQ-WW-SSB",
			Timestamp:   domain.Clock().Now().UTC().Format(time.DateTime),
			MyCall:      *myCall,
			Band:        *band,
			Mode:        *mode,
			Call:        strings.ToUpper(call),
			Snt:         "59",
			Rcv:         "59",
			Duplicate:   "False",
		})
		if err != nil {
			return err
		}
		// Round-trip through the service's decoder so a bad flag fails here.
		if _, err := domain.ParseContactRecord(payload); err != nil {
			return fmt.Errorf("payload for %s: %w", call, err)
		}
		if _, err := conn.Write(payload); err != nil {
			return fmt.Errorf("send %s: %w", call, err)
		}
		log.Printf("sent %s on %s to %s", call, *band, *addr)

		if *interval > 0 && i < len(calls)-1 {
			time.Sleep(*interval)
		}
	}
	return nil
}

func encode(c contactInfo) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encode contact: %w", err)
	}
	return buf.Bytes(), nil
}
