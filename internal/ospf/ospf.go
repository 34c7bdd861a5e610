// Package ospf reads an OSPF link-state database dump (JSON, as printed by the routing
// daemon) and extracts the router-to-network links and router adjacencies.
package ospf

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	lsaTypeRouter      = "Router"
	lsaTypeIntraPrefix = "Intra-Prefix"
)

// Link is a network a router advertises, with its cost.
type Link struct {
	Router string
	Net    string
	Cost   int32
}

// Neighbour is one side of a router adjacency.
type Neighbour struct {
	Router             string
	Interface          string
	NeighbourRouter    string
	NeighbourInterface string
}

type Database struct {
	Links      []Link
	Neighbours []Neighbour
}

// Routers returns every router id mentioned by d, sorted.
func (d Database) Routers() []string {
	seen := make(map[string]struct{})
	for _, l := range d.Links {
		seen[l.Router] = struct{}{}
	}
	for _, n := range d.Neighbours {
		seen[n.Router] = struct{}{}
		seen[n.NeighbourRouter] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Nets returns every network prefix in d, sorted.
func (d Database) Nets() []string {
	seen := make(map[string]struct{})
	for _, l := range d.Links {
		seen[l.Net] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

const dumpSchema = `{
  "type": "object",
  "required": ["areaScopedLinkStateDb"],
  "properties": {
    "areaScopedLinkStateDb": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "lsa": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["type", "advertisingRouter"],
              "properties": {
                "type": {"type": "string"},
                "advertisingRouter": {"type": "string", "minLength": 1}
              }
            }
          }
        }
      }
    }
  }
}`

var dumpValidator = func() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(dumpSchema))
	if err != nil {
		panic(fmt.Sprintf("ospf dump schema: %v", err))
	}
	return s
}()

// flexString accepts both JSON strings and numbers; daemons differ on interface ids.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type dump struct {
	Areas []struct {
		LSA []lsa `json:"lsa"`
	} `json:"areaScopedLinkStateDb"`
}

type lsa struct {
	Type              string `json:"type"`
	AdvertisingRouter string `json:"advertisingRouter"`
	Prefix            []struct {
		Prefix string     `json:"prefix"`
		Metric flexString `json:"metric"`
	} `json:"prefix"`
	Description []struct {
		InterfaceID         flexString `json:"interfaceId"`
		NeighborRouterID    flexString `json:"neighborRouterId"`
		NeighborInterfaceID flexString `json:"neighborInterfaceId"`
	} `json:"lsaDescription"`
}

// Parse reads one database dump. Unknown LSA types are ignored.
func Parse(r io.Reader) (Database, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return Database{}, fmt.Errorf("read dump: %w", err)
	}
	result, err := dumpValidator.Validate(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return Database{}, fmt.Errorf("parse dump: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Database{}, fmt.Errorf("unexpected dump layout: %s", strings.Join(msgs, "; "))
	}

	var d dump
	if err := json.Unmarshal(b, &d); err != nil {
		return Database{}, fmt.Errorf("decode dump: %w", err)
	}

	var db Database
	for _, area := range d.Areas {
		for _, l := range area.LSA {
			switch l.Type {
			case lsaTypeIntraPrefix:
				for _, p := range l.Prefix {
					if strings.TrimSpace(p.Prefix) == "" {
						continue
					}
					cost, err := strconv.ParseInt(string(p.Metric), 10, 32)
					if err != nil {
						return Database{}, fmt.Errorf("router %s prefix %s: bad metric %q", l.AdvertisingRouter, p.Prefix, p.Metric)
					}
					db.Links = append(db.Links, Link{Router: l.AdvertisingRouter, Net: p.Prefix, Cost: int32(cost)})
				}
			case lsaTypeRouter:
				for _, desc := range l.Description {
					if desc.NeighborRouterID == "" {
						continue
					}
					db.Neighbours = append(db.Neighbours, Neighbour{
						Router:             l.AdvertisingRouter,
						Interface:          string(desc.InterfaceID),
						NeighbourRouter:    string(desc.NeighborRouterID),
						NeighbourInterface: string(desc.NeighborInterfaceID),
					})
				}
			}
		}
	}
	return db, nil
}
