// Package contacts reads emergency contact snapshots from the recipient directory.
// The daemon never writes contacts; the directory is maintained elsewhere.
package contacts

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sweeney/fall-sensor/internal/logic"
)

// Directory returns the current ordered snapshot of emergency contacts.
type Directory interface {
	Contacts(ctx context.Context) ([]logic.Contact, error)
}

// Static is a fixed in-memory directory.
type Static []logic.Contact

// Contacts returns a copy of the list.
func (s Static) Contacts(context.Context) ([]logic.Contact, error) {
	return append([]logic.Contact(nil), s...), nil
}

// entry is the JSON shape of a contact in files and Redis.
type entry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (e entry) contact() logic.Contact {
	return logic.Contact{
		ID:    e.ID,
		Name:  strings.TrimSpace(e.Name),
		Phone: strings.TrimSpace(e.Phone),
	}
}

// File reads a JSON array of contacts from disk on every call, so edits made
// by the directory owner are picked up at the next dispatch.
type File struct {
	Path string
}

// Contacts reads and parses the file.
func (f File) Contacts(context.Context) ([]logic.Contact, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	return parseJSON(data)
}

func parseJSON(data []byte) ([]logic.Contact, error) {
	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse contacts: %w", err)
	}
	out := make([]logic.Contact, 0, len(entries))
	for i, e := range entries {
		c := e.contact()
		if c.ID == "" {
			c.ID = fmt.Sprintf("%d", i+1)
		}
		out = append(out, c)
	}
	return out, nil
}
