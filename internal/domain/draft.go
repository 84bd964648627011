package domain

// LocalFile is a file selected by the user and held by the composer until send.
type LocalFile struct {
	ID          string
	Name        string
	SizeBytes   int64
	ContentType string
	Data        []byte
}

// Draft is unsent message content. It only exists locally.
type Draft struct {
	Text  string
	Files []LocalFile
}

// Clone returns a copy that shares no slices with d.
func (d Draft) Clone() Draft {
	out := Draft{Text: d.Text}
	if len(d.Files) > 0 {
		out.Files = make([]LocalFile, len(d.Files))
		copy(out.Files, d.Files)
	}
	return out
}
