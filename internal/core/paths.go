package core

import (
	"fmt"
	"net/url"

	"github.com/douit-app/douit/internal/docstore"
)

const (
	fragmentsColl = "fragments"
	termSetsColl  = "termSets"
)

func fragmentVersionsColl(fragmentID string) string {
	return docstore.Path(fragmentsColl, fragmentID, "versions")
}

func refsColl(setID string) string {
	return docstore.Path(termSetsColl, setID, "fragments")
}

func setVersionsColl(setID string) string {
	return docstore.Path(termSetsColl, setID, "versions")
}

func archivedRefsColl(setID string, version int) string {
	return docstore.Path(termSetsColl, setID, "versions", versionKey(version), "fragments")
}

func usageColl(fragmentID string) string {
	return docstore.Path("fragmentUsage", fragmentID, "sets")
}

// understoodColl partitions records by user. User ids are opaque, so they are
// escaped to keep them a single path segment.
func understoodColl(userID string) string {
	return docstore.Path("users", url.PathEscape(userID), "understood")
}

// versionKey zero-pads version numbers so id order equals numeric order.
func versionKey(v int) string {
	return fmt.Sprintf("%08d", v)
}
