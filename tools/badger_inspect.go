// Command badger_inspect dumps the relay's BadgerDB content as a table
// for local debugging. Point it at a stopped server's data directory;
// Badger takes an exclusive lock.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", "/tmp/chat-relay", "Path to badger DB")
	prefix := flag.String("prefix", "", "Prefix to scan (user:, group:, member:, dm:); empty scans everything")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithLoggingLevel(badger.ERROR).
		WithReadOnly(true))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "ID", "At", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				return nil
			})
			if err != nil {
				fmt.Printf("Error reading key %s: %v\n", key, err)
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

// describe renders one row per stored record, decoding the JSON value
// according to the key namespace.
func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "user:"):
		var u repositories.User
		if err := json.Unmarshal(value, &u); err != nil {
			return malformed(key, "USER", err)
		}
		return []string{key, "USER", fmt.Sprint(u.ID), u.CreatedAt.Format("2006-01-02 15:04:05"), u.Name}

	case strings.HasPrefix(key, "group:"):
		var g repositories.Group
		if err := json.Unmarshal(value, &g); err != nil {
			return malformed(key, "GROUP", err)
		}
		detail := fmt.Sprintf("%s (created by %d)", g.Name, g.CreatedBy)
		return []string{key, "GROUP", fmt.Sprint(g.ID), g.CreatedAt.Format("2006-01-02 15:04:05"), detail}

	case strings.HasPrefix(key, "member:"):
		return []string{key, "MEMBER", "", "", ""}

	case strings.HasPrefix(key, "dm:"):
		var m repositories.StoredMessage
		if err := json.Unmarshal(value, &m); err != nil {
			return malformed(key, "DM", err)
		}
		detail := fmt.Sprintf("%d -> %d: %s", m.Sender, m.Receiver, truncate(m.Content, 40))
		return []string{key, "DM", fmt.Sprint(m.ID), m.At.Format("2006-01-02 15:04:05"), detail}

	case strings.HasPrefix(key, "seq:"):
		return []string{key, "SEQ", "", "", ""}

	default:
		return []string{key, "?", "", "", truncate(string(value), 40)}
	}
}

func malformed(key, kind string, err error) []string {
	return []string{key, kind, "", "", fmt.Sprintf("unreadable: %v", err)}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
