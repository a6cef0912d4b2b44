// Package wave defines the analytics dataset and template representations
// served by the name-bridged adapters.
package wave

// Cache key namespaces for wave assets.
const (
	DatasetKeyPrefix  = "WAVE::DatasetRepresentation:"
	TemplateKeyPrefix = "WAVE::TemplateRepresentation:"
)

// Asset is a wave resource addressable by id or developer name.
type Asset interface {
	AssetID() string
	AssetName() string
}

// AssetReference points at a related asset such as a folder.
type AssetReference struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Label string `json:"label,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Dataset is an analytics dataset.
type Dataset struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Label            string          `json:"label,omitempty"`
	Type             string          `json:"type,omitempty"`
	DatasetType      string          `json:"datasetType,omitempty"`
	URL              string          `json:"url,omitempty"`
	CurrentVersionID string          `json:"currentVersionId,omitempty"`
	Folder           *AssetReference `json:"folder,omitempty"`
	CreatedDate      string          `json:"createdDate,omitempty"`
	LastModifiedDate string          `json:"lastModifiedDate,omitempty"`
}

// AssetID implements Asset.
func (d *Dataset) AssetID() string { return d.ID }

// AssetName implements Asset.
func (d *Dataset) AssetName() string { return d.Name }

// ReleaseInfo describes a template release.
type ReleaseInfo struct {
	TemplateVersion string `json:"templateVersion,omitempty"`
	Notes           string `json:"notesFile,omitempty"`
}

// Template is an analytics app template.
type Template struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Label            string          `json:"label,omitempty"`
	Description      string          `json:"description,omitempty"`
	TemplateType     string          `json:"templateType,omitempty"`
	URL              string          `json:"url,omitempty"`
	Namespace        string          `json:"namespace,omitempty"`
	ReleaseInfo      *ReleaseInfo    `json:"releaseInfo,omitempty"`
	Folder           *AssetReference `json:"folderSource,omitempty"`
	LastModifiedDate string          `json:"lastModifiedDate,omitempty"`
}

// AssetID implements Asset.
func (t *Template) AssetID() string { return t.ID }

// AssetName implements Asset.
func (t *Template) AssetName() string { return t.Name }

// DatasetKey returns the cache key for a dataset id.
func DatasetKey(id string) string { return DatasetKeyPrefix + id }

// TemplateKey returns the cache key for a template id.
func TemplateKey(id string) string { return TemplateKeyPrefix + id }
