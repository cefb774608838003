package keep

import "time"

type Label struct {
	ID   string
	Name string
}

// BlobRef points at a note attachment. MIMEType is only a hint from the store;
// the exported extension always comes from the fetched content-type.
type BlobRef struct {
	ID       string
	MIMEType string
}

type Note struct {
	ID       string
	Title    string
	Text     string
	Blobs    []BlobRef
	Labels   []Label
	Color    string
	Pinned   bool
	Archived bool
	Created  time.Time
	Updated  time.Time
}

func (n Note) HasLabel(name string) bool {
	for _, l := range n.Labels {
		if l.Name == name {
			return true
		}
	}
	return false
}

func (n Note) LabelNames() []string {
	out := make([]string, 0, len(n.Labels))
	for _, l := range n.Labels {
		out = append(out, l.Name)
	}
	return out
}

type Attachment struct {
	Filename string
	Content  []byte
	Markup   string
}

type ExportedNote struct {
	NoteID     string
	UniqueName string
	BodyPath   string
	MediaFiles []string
}
