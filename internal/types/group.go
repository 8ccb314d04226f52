package types

// Group is a set of files that share a grouping key.
// In reference mode Kept is the authoritative copy and is exempt from every
// action; Members then holds only the candidates.
type Group struct {
	Kept    *FileEntry
	Members []FileEntry
}
