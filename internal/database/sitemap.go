package database

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/nao1215/scopecrawl/internal/model"
)

// SiteNode is one node of the site map. Roots are scheme://host nodes,
// their descendants are path segments.
type SiteNode struct {
	ID        int64
	ParentID  int64
	Name      string
	URL       string
	Hits      int
	LastState string
	LastSeen  time.Time
	Children  []*SiteNode
}

// AddSiteNode records rawURL and every ancestor path in the site map.
// The query and fragment are ignored. Repeated visits increase the hit count.
func (cdb *CrawlDB) AddSiteNode(ctx context.Context, rawURL string, state model.ResourceState) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse site node URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site node URL %q is not absolute", rawURL)
	}

	root := strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
	names := []string{root}
	for seg := range strings.SplitSeq(strings.Trim(u.EscapedPath(), "/"), "/") {
		if seg != "" {
			names = append(names, seg)
		}
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO site_nodes (parent_id, name, url, last_state, last_seen)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(parent_id, name) DO UPDATE SET
		hits = hits + 1,
		last_state = excluded.last_state,
		last_seen = excluded.last_seen
	RETURNING id
	`
	now := formatTimestamp(time.Now())
	var parentID int64
	nodeURL := root
	for i, name := range names {
		if i > 0 {
			nodeURL += "/" + name
		}
		var id int64
		if err := tx.QueryRowContext(ctx, query, parentID, name, nodeURL, state.String(), now).Scan(&id); err != nil {
			return fmt.Errorf("failed to upsert site node %s: %w", nodeURL, err)
		}
		parentID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit site node: %w", err)
	}
	return nil
}

// SiteTree returns the site map as a forest of root nodes sorted by name.
func (cdb *CrawlDB) SiteTree(ctx context.Context) ([]*SiteNode, error) {
	query := `
	SELECT id, parent_id, name, url, hits, last_state, last_seen
	FROM site_nodes ORDER BY id
	`
	rows, err := cdb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query site nodes: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*SiteNode)
	var nodes []*SiteNode
	for rows.Next() {
		var (
			n        SiteNode
			lastSeen string
		)
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Name, &n.URL, &n.Hits, &n.LastState, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan site node: %w", err)
		}
		n.LastSeen = parseTimestamp(lastSeen)
		byID[n.ID] = &n
		nodes = append(nodes, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var roots []*SiteNode
	for _, n := range nodes {
		if parent, ok := byID[n.ParentID]; ok {
			parent.Children = append(parent.Children, n)
			continue
		}
		roots = append(roots, n)
	}
	sortNodes(roots)
	return roots, nil
}

func sortNodes(nodes []*SiteNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}
