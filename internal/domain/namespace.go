package domain

import (
	"path"
	"strings"
)

// namespaceEscaper percent-encodes the characters that carry structure in a
// namespace key or an object key. '%' goes first so encoded output cannot be
// mistaken for input.
var namespaceEscaper = strings.NewReplacer("%", "%25", ":", "%3A", "/", "%2F")

// Namespace is the tenant isolation key derived from the customer and project
// headers. All storage and retrieval is scoped by it.
type Namespace struct {
	CustomerID string
	ProjectID  string
}

func NewNamespace(customerID, projectID string) Namespace {
	return Namespace{CustomerID: customerID, ProjectID: projectID}
}

// String returns the serialized key. Identifiers without '%', ':' or '/' come
// out as "customer:project"; anything else is escaped, so distinct pairs never
// share a key.
func (n Namespace) String() string {
	return namespaceEscaper.Replace(n.CustomerID) + ":" + namespaceEscaper.Replace(n.ProjectID)
}

// LegacyKey is the naive colon join. ("a:b","c") and ("a","b:c") collide here.
func (n Namespace) LegacyKey() string {
	return n.CustomerID + ":" + n.ProjectID
}

// Complete reports whether both parts are present.
func (n Namespace) Complete() bool {
	return n.CustomerID != "" && n.ProjectID != ""
}

// ObjectKey returns the blob key for an uploaded file inside this namespace.
func (n Namespace) ObjectKey(filename string) (string, error) {
	name, err := CleanFilename(filename)
	if err != nil {
		return "", err
	}
	return n.String() + "/" + name, nil
}

// CleanFilename reduces an uploaded filename to its base name.
func CleanFilename(filename string) (string, error) {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", ErrInvalidFilename
	}
	return name, nil
}
