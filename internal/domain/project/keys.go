package project

import (
	"path"
	"strings"
)

// BlobCategory is the second path segment of every object a project owns.
type BlobCategory string

const (
	BlobPhotos    BlobCategory = "photos"
	BlobScan      BlobCategory = "scan"
	BlobOptions   BlobCategory = "options"
	BlobRevisions BlobCategory = "revisions"
	BlobChat      BlobCategory = "chat"
)

// Prefix is the storage prefix under which every blob of project id lives.
func Prefix(id string) string {
	return "projects/" + id + "/"
}

func BlobKey(id string, cat BlobCategory, name string) string {
	return Prefix(id) + string(cat) + "/" + path.Base(name)
}

func ChatKey(id string) string {
	return BlobKey(id, BlobChat, "history.json")
}

// OwnsKey reports whether key sits under the project's prefix.
func OwnsKey(id, key string) bool {
	if id == "" || key == "" || strings.Contains(key, "..") {
		return false
	}
	return strings.HasPrefix(key, Prefix(id)) && len(key) > len(Prefix(id))
}

// BlobKeys lists every storage key the project references, without duplicates.
func (p Project) BlobKeys() []string {
	seen := map[string]bool{}
	var out []string
	add := func(k string) {
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, k)
	}
	for _, ph := range p.Photos {
		add(ph.StorageKey)
	}
	if p.ScanData != nil {
		add(p.ScanData.StorageKey)
	}
	for _, o := range p.GeneratedOptions {
		add(o.ImageKey)
	}
	add(p.CurrentImage)
	for _, r := range p.RevisionHistory {
		add(r.BaseImage)
		add(r.RevisedImage)
	}
	add(p.ChatHistoryKey)
	return out
}
