package service

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// objectPathParts are the identifiers embedded in a raw upload path
// ({prefix}/{contributor_id}/{submission_id}.{ext}).
type objectPathParts struct {
	ContributorID string
	SubmissionID  string
	Extension     string
}

func parseObjectPath(prefix, objectPath string) (objectPathParts, bool) {
	var parts objectPathParts
	if objectPath == "" || objectPath != path.Clean(objectPath) || strings.HasPrefix(objectPath, "/") {
		return parts, false
	}
	segments := strings.Split(objectPath, "/")
	if len(segments) != 3 || segments[0] != prefix {
		return parts, false
	}
	name := segments[2]
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return parts, false
	}
	parts.ContributorID = segments[1]
	parts.SubmissionID = name[:dot]
	parts.Extension = strings.ToLower(name[dot+1:])
	if parts.ContributorID == "" {
		return parts, false
	}
	return parts, true
}

// derivedObjectPrefix is the listing prefix of blobs derived from one submission.
func derivedObjectPrefix(prefix, contributorID, submissionID string) string {
	return prefix + "/" + contributorID + "/" + submissionID + "."
}

// canonicalSubmissionID returns the lower-case hyphenated form of a UUID, or
// the trimmed input when it does not parse.
func canonicalSubmissionID(raw string) string {
	raw = strings.TrimSpace(raw)
	id, err := uuid.Parse(raw)
	if err != nil {
		return raw
	}
	return id.String()
}

// blobSubmissionID extracts the canonical submission id from a raw or derived
// blob path ({prefix}/{contributor_id}/{submission_id}.{suffix}). The id ends
// at the first dot so derived names such as {id}.128k.opus resolve too.
func blobSubmissionID(prefix, objectPath string) (string, bool) {
	segments := strings.Split(objectPath, "/")
	if len(segments) != 3 || segments[0] != prefix || segments[1] == "" {
		return "", false
	}
	name := segments[2]
	dot := strings.Index(name, ".")
	if dot <= 0 {
		return "", false
	}
	id, err := uuid.Parse(name[:dot])
	if err != nil {
		return "", false
	}
	return id.String(), true
}
