package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const ensureMap = `-- name: EnsureMap :one
INSERT INTO maps (name)
VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING map_id, name
`

func (q *Queries) EnsureMap(ctx context.Context, name string) (Map, error) {
	row := q.db.QueryRow(ctx, ensureMap, name)
	var i Map
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const getMapByName = `-- name: GetMapByName :one
SELECT map_id, name
FROM maps
WHERE name = $1
`

func (q *Queries) GetMapByName(ctx context.Context, name string) (Map, error) {
	row := q.db.QueryRow(ctx, getMapByName, name)
	var i Map
	err := row.Scan(&i.ID, &i.Name)
	return i, err
}

const listMaps = `-- name: ListMaps :many
SELECT map_id, name
FROM maps
ORDER BY name
`

func (q *Queries) ListMaps(ctx context.Context) ([]Map, error) {
	rows, err := q.db.Query(ctx, listMaps)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Map
	for rows.Next() {
		var i Map
		if err := rows.Scan(&i.ID, &i.Name); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listPositions = `-- name: ListPositions :many
SELECT node_id, x, y, updated_at
FROM pos
WHERE map_id = $1
ORDER BY node_id
`

func (q *Queries) ListPositions(ctx context.Context, mapID int32) ([]Position, error) {
	rows, err := q.db.Query(ctx, listPositions, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Position
	for rows.Next() {
		var i Position
		if err := rows.Scan(&i.NodeID, &i.X, &i.Y, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertPosition = `-- name: UpsertPosition :one
INSERT INTO pos (map_id, node_id, x, y)
SELECT m.map_id, $2, $3, $4
FROM maps m
WHERE m.name = $1
ON CONFLICT (map_id, node_id) DO UPDATE
SET x = EXCLUDED.x,
    y = EXCLUDED.y,
    updated_at = now()
RETURNING node_id, x, y, updated_at
`

type UpsertPositionParams struct {
	MapName string
	NodeID  string
	X       int32
	Y       int32
}

// UpsertPosition returns pgx.ErrNoRows when the map does not exist.
func (q *Queries) UpsertPosition(ctx context.Context, arg UpsertPositionParams) (Position, error) {
	row := q.db.QueryRow(ctx, upsertPosition, arg.MapName, arg.NodeID, arg.X, arg.Y)
	var i Position
	err := row.Scan(&i.NodeID, &i.X, &i.Y, &i.UpdatedAt)
	return i, err
}

const listNodeNames = `-- name: ListNodeNames :many
SELECT node_id, name, source
FROM nodenames
ORDER BY node_id
`

func (q *Queries) ListNodeNames(ctx context.Context) ([]NodeName, error) {
	rows, err := q.db.Query(ctx, listNodeNames)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []NodeName
	for rows.Next() {
		var i NodeName
		if err := rows.Scan(&i.NodeID, &i.Name, &i.Source); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertNodeName = `-- name: UpsertNodeName :exec
INSERT INTO nodenames (node_id, name, source)
VALUES ($1, $2, $3)
ON CONFLICT (node_id) DO UPDATE
SET name = EXCLUDED.name,
    source = EXCLUDED.source,
    updated_at = now()
WHERE nodenames.source <> 'manual'
`

type UpsertNodeNameParams struct {
	NodeID string
	Name   string
	Source string
}

// UpsertNodeName never overwrites a manually assigned name.
func (q *Queries) UpsertNodeName(ctx context.Context, arg UpsertNodeNameParams) error {
	_, err := q.db.Exec(ctx, upsertNodeName, arg.NodeID, arg.Name, arg.Source)
	return err
}

const listUnnamedRouters = `-- name: ListUnnamedRouters :many
SELECT DISTINCT l.router
FROM links l
LEFT JOIN nodenames n ON n.node_id = l.router
WHERE n.node_id IS NULL
ORDER BY l.router
`

func (q *Queries) ListUnnamedRouters(ctx context.Context) ([]string, error) {
	rows, err := q.db.Query(ctx, listUnnamedRouters)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMapLinks = `-- name: ListMapLinks :many
SELECT l.router, l.net, l.cost
FROM links l
JOIN mapnodes r ON r.node_id = l.router AND r.map_id = $1
JOIN mapnodes n ON n.node_id = l.net AND n.map_id = $1
ORDER BY l.router, l.net
`

func (q *Queries) ListMapLinks(ctx context.Context, mapID int32) ([]Link, error) {
	rows, err := q.db.Query(ctx, listMapLinks, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Link
	for rows.Next() {
		var i Link
		if err := rows.Scan(&i.Router, &i.Net, &i.Cost); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listMapNeighbours = `-- name: ListMapNeighbours :many
SELECT g.node1_id, g.link1, g.node2_id, g.link2
FROM neigh g
JOIN mapnodes a ON a.node_id = g.node1_id AND a.map_id = $1
JOIN mapnodes b ON b.node_id = g.node2_id AND b.map_id = $1
ORDER BY g.node1_id, g.link1
`

func (q *Queries) ListMapNeighbours(ctx context.Context, mapID int32) ([]Neighbour, error) {
	rows, err := q.db.Query(ctx, listMapNeighbours, mapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Neighbour
	for rows.Next() {
		var i Neighbour
		if err := rows.Scan(&i.Node1ID, &i.Link1, &i.Node2ID, &i.Link2); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteLinks = `-- name: DeleteLinks :exec
DELETE FROM links
`

func (q *Queries) DeleteLinks(ctx context.Context) error {
	_, err := q.db.Exec(ctx, deleteLinks)
	return err
}

const insertLink = `-- name: InsertLink :exec
INSERT INTO links (router, net, cost)
VALUES ($1, $2, $3)
`

type InsertLinkParams struct {
	Router string
	Net    string
	Cost   int32
}

func (q *Queries) InsertLink(ctx context.Context, arg InsertLinkParams) error {
	_, err := q.db.Exec(ctx, insertLink, arg.Router, arg.Net, arg.Cost)
	return err
}

const deleteNeighbours = `-- name: DeleteNeighbours :exec
DELETE FROM neigh
`

func (q *Queries) DeleteNeighbours(ctx context.Context) error {
	_, err := q.db.Exec(ctx, deleteNeighbours)
	return err
}

const insertNeighbour = `-- name: InsertNeighbour :exec
INSERT INTO neigh (node1_id, link1, node2_id, link2)
VALUES ($1, $2, $3, $4)
`

type InsertNeighbourParams struct {
	Node1ID string
	Link1   string
	Node2ID string
	Link2   string
}

func (q *Queries) InsertNeighbour(ctx context.Context, arg InsertNeighbourParams) error {
	_, err := q.db.Exec(ctx, insertNeighbour, arg.Node1ID, arg.Link1, arg.Node2ID, arg.Link2)
	return err
}

const addMapNode = `-- name: AddMapNode :exec
INSERT INTO mapnodes (map_id, node_id)
VALUES ($1, $2)
ON CONFLICT (map_id, node_id) DO NOTHING
`

type AddMapNodeParams struct {
	MapID  int32
	NodeID string
}

func (q *Queries) AddMapNode(ctx context.Context, arg AddMapNodeParams) error {
	_, err := q.db.Exec(ctx, addMapNode, arg.MapID, arg.NodeID)
	return err
}
