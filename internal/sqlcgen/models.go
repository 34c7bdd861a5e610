package sqlcgen

import "time"

type Map struct {
	ID   int32
	Name string
}

type Position struct {
	NodeID    string
	X         int32
	Y         int32
	UpdatedAt time.Time
}

type NodeName struct {
	NodeID string
	Name   string
	Source string
}

type Link struct {
	Router string
	Net    string
	Cost   int32
}

type Neighbour struct {
	Node1ID string
	Link1   string
	Node2ID string
	Link2   string
}
