package assetcache

// Hooks are lightweight callbacks for high-signal cache events.
// Implementations MUST be cheap and non-blocking; the cache calls them
// inline on hot paths.
type Hooks interface {
	// An index entry referenced a local file that no longer exists and was
	// removed on read.
	StaleEntryRemoved(key, path string)

	// The index file on disk could not be parsed; the cache started empty.
	IndexCorrupt(path string, err error)

	// A remote store call failed after retries.
	// op is one of "upload", "download", "verify", "list", "delete".
	RemoteOpFailed(op, key string, err error)

	// An asset moved from the remote-only tier to local disk.
	AssetPromoted(key string)

	// An asset's local copy was removed after remote verification.
	AssetDemoted(key string)
}

// NopHooks is the default no-op.
type NopHooks struct{}

func (NopHooks) StaleEntryRemoved(string, string)      {}
func (NopHooks) IndexCorrupt(string, error)            {}
func (NopHooks) RemoteOpFailed(string, string, error)  {}
func (NopHooks) AssetPromoted(string)                  {}
func (NopHooks) AssetDemoted(string)                   {}
