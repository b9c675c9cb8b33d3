package models

// BlobReference locates a blob in object storage. Owner-side references carry
// a ConnectionString; references handed to third parties carry a BaseLocation
// and SasBlobToken instead.
type BlobReference struct {
	ConnectionString string `json:"ConnectionString,omitempty"`
	RelativeLocation string `json:"RelativeLocation"`
	BaseLocation     string `json:"BaseLocation,omitempty"`
	SasBlobToken     string `json:"SasBlobToken,omitempty"`
}

// IsSAS reports whether the reference is the shared-access-signature variant.
func (r BlobReference) IsSAS() bool {
	return r.SasBlobToken != ""
}

// ResourceLocations is the publish endpoint PATCH body.
type ResourceLocations struct {
	Resources []ResourceLocation `json:"Resources"`
}

// ResourceLocation points a named model slot at a blob.
type ResourceLocation struct {
	Name     string        `json:"Name"`
	Location BlobReference `json:"Location"`
}
