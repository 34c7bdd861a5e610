// Package snmp asks routers for their configured system name.
package snmp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"netmap/internal/naming"
)

type Config struct {
	Community string
	Version   string // "2c" (default) | "1"
	Port      uint16
	Timeout   time.Duration
	Retries   int
}

type SystemInfo struct {
	SysName     *string
	SysDescr    *string
	SysLocation *string
}

type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	if strings.TrimSpace(cfg.Community) == "" {
		cfg.Community = "public"
	}
	if strings.TrimSpace(cfg.Version) == "" {
		cfg.Version = "2c"
	}
	if cfg.Port == 0 {
		cfg.Port = 161
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 900 * time.Millisecond
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Client{cfg: cfg}
}

func snmpVersion(v string) (gosnmp.SnmpVersion, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "2c", "v2c", "":
		return gosnmp.Version2c, nil
	case "1", "v1":
		return gosnmp.Version1, nil
	default:
		return 0, fmt.Errorf("unsupported snmp version %q", v)
	}
}

func (c *Client) connect(ctx context.Context, address string) (*gosnmp.GoSNMP, error) {
	version, err := snmpVersion(c.cfg.Version)
	if err != nil {
		return nil, err
	}
	s := &gosnmp.GoSNMP{
		Context:   ctx,
		Target:    address,
		Port:      c.cfg.Port,
		Community: c.cfg.Community,
		Version:   version,
		Timeout:   c.cfg.Timeout,
		Retries:   c.cfg.Retries,
	}
	if err := s.Connect(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	oidSysDescr0    = "1.3.6.1.2.1.1.1.0"
	oidSysName0     = "1.3.6.1.2.1.1.5.0"
	oidSysLocation0 = "1.3.6.1.2.1.1.6.0"
)

func pduString(pdu gosnmp.SnmpPDU) *string {
	var s string
	switch v := pdu.Value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// systemInfo picks the system group values out of a GET response. OIDs may come back
// with or without the leading dot.
func systemInfo(vars []gosnmp.SnmpPDU) SystemInfo {
	var out SystemInfo
	for _, v := range vars {
		switch strings.TrimPrefix(v.Name, ".") {
		case oidSysName0:
			out.SysName = pduString(v)
		case oidSysDescr0:
			out.SysDescr = pduString(v)
		case oidSysLocation0:
			out.SysLocation = pduString(v)
		}
	}
	return out
}

func (c *Client) GetSystem(ctx context.Context, address string) (SystemInfo, error) {
	if c == nil {
		return SystemInfo{}, errors.New("snmp client is nil")
	}
	s, err := c.connect(ctx, address)
	if err != nil {
		return SystemInfo{}, err
	}
	defer s.Conn.Close()

	pkt, err := s.Get([]string{oidSysName0, oidSysDescr0, oidSysLocation0})
	if err != nil {
		return SystemInfo{}, err
	}
	return systemInfo(pkt.Variables), nil
}

// Names implements the importer's name source: the sysName of the router at routerID.
func (c *Client) Names(ctx context.Context, routerID string) ([]naming.Candidate, error) {
	info, err := c.GetSystem(ctx, routerID)
	if err != nil {
		return nil, err
	}
	if info.SysName == nil {
		return nil, nil
	}
	return []naming.Candidate{{Name: *info.SysName, Source: naming.SourceSNMP}}, nil
}
