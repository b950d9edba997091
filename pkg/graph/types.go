package graph

import (
	"strings"
	"time"
)

// Microsoft Graph API request/response structures. Only the facets this
// service reads are modeled; the wire format is the Graph v1.0 JSON shape.

// DriveItem represents a file, folder, or other item in a user drive
type DriveItem struct {
	ID                   string           `json:"id"`
	Name                 string           `json:"name"`
	CreatedDateTime      string           `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime,omitempty"`
	Size                 int64            `json:"size"`
	WebURL               string           `json:"webUrl,omitempty"`
	DownloadURL          string           `json:"@microsoft.graph.downloadUrl,omitempty"`
	File                 *FileMetadata    `json:"file,omitempty"`
	Folder               *FolderMetadata  `json:"folder,omitempty"`
	Deleted              *DeletedMetadata `json:"deleted,omitempty"`
	ParentReference      *ItemReference   `json:"parentReference,omitempty"`
	FileSystemInfo       *FileSystemInfo  `json:"fileSystemInfo,omitempty"`
	CTag                 string           `json:"cTag,omitempty"`
	ETag                 string           `json:"eTag,omitempty"`
}

// IsFolder reports whether the item carries the folder facet
func (d *DriveItem) IsFolder() bool {
	return d.Folder != nil
}

// IsDeleted reports whether the item carries the deleted facet
func (d *DriveItem) IsDeleted() bool {
	return d.Deleted != nil
}

// CreatedTime parses the created timestamp; ok is false when absent or malformed
func (d *DriveItem) CreatedTime() (time.Time, bool) {
	return parseGraphTime(d.CreatedDateTime)
}

// ModifiedTime parses the last-modified timestamp; ok is false when absent or malformed
func (d *DriveItem) ModifiedTime() (time.Time, bool) {
	return parseGraphTime(d.LastModifiedDateTime)
}

func parseGraphTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FileMetadata contains file-specific metadata
type FileMetadata struct {
	MimeType string          `json:"mimeType"`
	Hashes   *HashesMetadata `json:"hashes,omitempty"`
}

// FolderMetadata contains folder-specific metadata
type FolderMetadata struct {
	ChildCount int32 `json:"childCount"`
}

// DeletedMetadata contains information about deleted items
type DeletedMetadata struct {
	State string `json:"state"`
}

// ItemReference represents a reference to another drive item
type ItemReference struct {
	DriveID   string `json:"driveId,omitempty"`
	DriveType string `json:"driveType,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Path      string `json:"path,omitempty"`
	SiteID    string `json:"siteId,omitempty"`
}

// FileSystemInfo contains client-reported file system timestamps
type FileSystemInfo struct {
	CreatedDateTime      string `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string `json:"lastModifiedDateTime,omitempty"`
}

// HashesMetadata contains file content hashes
type HashesMetadata struct {
	SHA1Hash     string `json:"sha1Hash,omitempty"`
	SHA256Hash   string `json:"sha256Hash,omitempty"`
	QuickXorHash string `json:"quickXorHash,omitempty"`
}

// DriveItemCollection represents one page of drive items
type DriveItemCollection struct {
	ODataContext  string      `json:"@odata.context,omitempty"`
	ODataNextLink string      `json:"@odata.nextLink,omitempty"`
	Value         []DriveItem `json:"value"`
}

// User represents a directory user
type User struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName,omitempty"`
	Mail              string `json:"mail,omitempty"`
	UserPrincipalName string `json:"userPrincipalName,omitempty"`
}

// UserCollection represents one page of directory users
type UserCollection struct {
	ODataContext  string `json:"@odata.context,omitempty"`
	ODataNextLink string `json:"@odata.nextLink,omitempty"`
	Value         []User `json:"value"`
}

// Site represents a SharePoint site
type Site struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	WebURL      string `json:"webUrl,omitempty"`
}

// SiteCollection represents one page of SharePoint sites
type SiteCollection struct {
	ODataContext  string `json:"@odata.context,omitempty"`
	ODataNextLink string `json:"@odata.nextLink,omitempty"`
	Value         []Site `json:"value"`
}

// DeltaPage is one page of a delta query response. When NextLink is set the
// page is not the last one; when DeltaLink is set the page closes the change
// set and DeltaToken holds the continuation token extracted from it.
type DeltaPage struct {
	ODataContext string      `json:"@odata.context,omitempty"`
	NextLink     string      `json:"@odata.nextLink,omitempty"`
	DeltaLink    string      `json:"@odata.deltaLink,omitempty"`
	Value        []DriveItem `json:"value"`

	DeltaToken string `json:"-"`
}

const deltaTokenMarker = "token="

// TokenFromDeltaLink extracts the opaque continuation token from a delta or
// next link. The link is never parsed beyond locating the token= marker; its
// remainder is stored and replayed verbatim.
func TokenFromDeltaLink(link string) string {
	idx := strings.Index(link, deltaTokenMarker)
	if idx < 0 {
		return ""
	}
	return link[idx+len(deltaTokenMarker):]
}
