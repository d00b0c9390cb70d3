package jsonltidx

import "time"

// Cursor is a compact file-identity fingerprint used to detect whether an
// on-disk file changed since an Index was built (spec §2 "File state cursor",
// §9 "Cursor-based staleness detection"). (size, mtime) alone is not
// bulletproof against same-second writes that preserve size, so Generation —
// a counter held in memory by the Table that produced the last write — is
// folded in as well: any append made through that Table always changes it.
type Cursor struct {
	Size       int64
	ModTime    time.Time
	Generation uint64
}

// Stale reports whether other differs from c in any dimension, meaning a
// cached Index built at c must be rebuilt before being trusted.
func (c Cursor) Stale(other Cursor) bool {
	return c.Size != other.Size || !c.ModTime.Equal(other.ModTime) || c.Generation != other.Generation
}
