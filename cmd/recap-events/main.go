// Command recap-events prints the diagnostic event log as a tree,
// rooted at the most recent process start unless -id selects another
// subtree.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/recaplabs/recap/internal/db"
)

type event struct {
	ID        int64
	Timestamp int64
	ParentID  sql.NullInt64
	Type      string
	Payload   sql.NullString
	Children  []*event
}

type options struct {
	maxDepth  int
	noPayload bool
}

func main() {
	var (
		dbPath    string
		rootFlag  int64
		jsonOut   bool
		opts      options
	)
	flag.StringVar(&dbPath, "db", envOrDefault("RECAP_DB_PATH", "./recap.db"), "SQLite event log path")
	flag.Int64Var(&rootFlag, "id", 0, "show the subtree under a specific event ID")
	flag.IntVar(&opts.maxDepth, "L", 0, "limit display depth (0 = unlimited)")
	flag.BoolVar(&jsonOut, "json", false, "emit JSON instead of a tree")
	flag.BoolVar(&opts.noPayload, "no-payload", false, "hide payload fields")
	flag.Parse()

	database, err := sql.Open("sqlite3", dbPath+"?mode=ro&_journal_mode=WAL")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()
	if err := database.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	rootID := rootFlag
	if rootID == 0 {
		rootID, err = db.LatestRoot(database)
		if err != nil {
			log.Fatalf("find root: %v", err)
		}
	}

	events, err := loadSubtree(database, rootID)
	if err != nil {
		log.Fatalf("load subtree: %v", err)
	}
	root := link(events, rootID)
	if root == nil {
		log.Fatalf("event %d not found", rootID)
	}

	if jsonOut {
		if err := writeJSON(os.Stdout, root, opts); err != nil {
			log.Fatalf("encode json: %v", err)
		}
		return
	}
	writeTree(os.Stdout, root, "", true, 1, opts)
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadSubtree fetches every event under rootID with a recursive CTE,
// ordered by id.
func loadSubtree(database *sql.DB, rootID int64) ([]*event, error) {
	rows, err := database.Query(`
		WITH RECURSIVE subtree(id) AS (
			SELECT id FROM events WHERE id = ?
			UNION ALL
			SELECT e.id FROM events e JOIN subtree s ON e.parent_id = s.id
		)
		SELECT e.id, e.timestamp, e.parent_id, e.event_type, e.payload
		FROM events e
		WHERE e.id IN (SELECT id FROM subtree)
		ORDER BY e.id ASC
	`, rootID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*event
	for rows.Next() {
		ev := &event{}
		if err := rows.Scan(&ev.ID, &ev.Timestamp, &ev.ParentID, &ev.Type, &ev.Payload); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// link wires the flat event list into parent/child form and returns
// the node for rootID.
func link(events []*event, rootID int64) *event {
	byID := make(map[int64]*event, len(events))
	for _, ev := range events {
		byID[ev.ID] = ev
	}
	for _, ev := range events {
		if !ev.ParentID.Valid || ev.ParentID.Int64 == ev.ID {
			continue
		}
		if parent, ok := byID[ev.ParentID.Int64]; ok {
			parent.Children = append(parent.Children, ev)
		}
	}
	for _, ev := range events {
		sort.Slice(ev.Children, func(i, j int) bool {
			return ev.Children[i].ID < ev.Children[j].ID
		})
	}
	return byID[rootID]
}

func writeTree(w io.Writer, ev *event, prefix string, last bool, depth int, opts options) {
	line := eventLine(ev, opts.noPayload)
	if depth == 1 {
		fmt.Fprintln(w, line)
	} else {
		connector := "├── "
		if last {
			connector = "└── "
		}
		fmt.Fprintln(w, prefix+connector+line)
	}

	childPrefix := prefix
	if depth > 1 {
		if last {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		if len(ev.Children) > 0 {
			fmt.Fprintln(w, childPrefix+"└── [...]")
		}
		return
	}
	for i, child := range ev.Children {
		writeTree(w, child, childPrefix, i == len(ev.Children)-1, depth+1, opts)
	}
}

// eventLine renders one event as "[id] timestamp  type  key=value ...".
func eventLine(ev *event, noPayload bool) string {
	ts := time.Unix(ev.Timestamp, 0).UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("[%d] %s  %s", ev.ID, ts, ev.Type)
	if noPayload {
		return line
	}
	for _, kv := range payloadFields(ev) {
		line += "  " + kv
	}
	return line
}

// payloadFields decodes the payload into sorted key=value strings,
// truncating long values.
func payloadFields(ev *event) []string {
	if !ev.Payload.Valid || ev.Payload.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ev.Payload.String), &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]string, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, fmt.Sprintf("%s=%s", k, displayValue(m[k])))
	}
	return fields
}

func displayValue(v any) string {
	switch val := v.(type) {
	case string:
		if len(val) > 80 {
			return fmt.Sprintf("%q", val[:80]+"...")
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

type jsonEvent struct {
	ID        int64       `json:"id"`
	Timestamp int64       `json:"timestamp"`
	Type      string      `json:"event_type"`
	Payload   any         `json:"payload,omitempty"`
	Children  []jsonEvent `json:"children,omitempty"`
}

func toJSON(ev *event, depth int, opts options) jsonEvent {
	je := jsonEvent{ID: ev.ID, Timestamp: ev.Timestamp, Type: ev.Type}
	if !opts.noPayload && ev.Payload.Valid && ev.Payload.String != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(ev.Payload.String), &m); err == nil {
			je.Payload = m
		}
	}
	if opts.maxDepth > 0 && depth >= opts.maxDepth {
		return je
	}
	for _, child := range ev.Children {
		je.Children = append(je.Children, toJSON(child, depth+1, opts))
	}
	return je
}

func writeJSON(w io.Writer, root *event, opts options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toJSON(root, 1, opts))
}
